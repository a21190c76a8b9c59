package main

import (
	"context"
	"fmt"
	"log"

	"github.com/mailmatrix/backend/internal/api"
	"github.com/mailmatrix/backend/internal/auth"
	"github.com/mailmatrix/backend/internal/config"
	"github.com/mailmatrix/backend/internal/events"
	"github.com/mailmatrix/backend/internal/ingest"
	"github.com/mailmatrix/backend/internal/providers/gmail"
	"github.com/mailmatrix/backend/internal/providers/outlook"
	"github.com/mailmatrix/backend/internal/store"
)

func main() {
	cfg := config.Load()

	st, err := store.Open(cfg.DBPath)
	if err != nil {
		log.Fatal(err)
	}
	defer st.Close()

	googleConfig := auth.NewGoogleConfig(cfg.GoogleClientID, cfg.GoogleClientSecret, cfg.GoogleRedirectURL)
	microsoftConfig := auth.NewMicrosoftConfig(cfg.MicrosoftClientID, cfg.MicrosoftClientSecret, cfg.MicrosoftRedirectURL)

	verifier, err := auth.NewIDTokenVerifier(context.Background(), cfg.GoogleClientID)
	if err != nil {
		// Identity falls back to the userinfo endpoint.
		log.Printf("ID token verifier unavailable: %v", err)
		verifier = nil
	}

	var publisher *events.Publisher
	if cfg.NATSURL != "" {
		publisher, err = events.NewPublisher(cfg.NATSURL)
		if err != nil {
			log.Fatal(err)
		}
		defer publisher.Close()

		if err := publisher.EnsureStream(); err != nil {
			log.Fatal(err)
		}
	}

	factory := func(ctx context.Context, cred store.Credential) (ingest.MailProvider, error) {
		switch cred.Provider {
		case store.ProviderMicrosoft:
			return outlook.New(ctx, cred)
		default:
			return gmail.New(ctx, cred)
		}
	}

	refresher := &auth.Refresher{
		Google:    googleConfig,
		Microsoft: microsoftConfig,
	}

	var classified ingest.ClassifiedPublisher
	if publisher != nil {
		classified = publisher
	}

	pipeline := ingest.NewPipeline(st, factory, refresher, classified, cfg.FetchLimit)

	scheduler := ingest.NewScheduler(st, pipeline, cfg.SyncInterval, cfg.SyncUserTimeout, cfg.SyncWorkers)
	scheduler.Start()
	defer scheduler.Stop()

	server := api.NewServer(st, scheduler, googleConfig, microsoftConfig, verifier, cfg.FrontendURL)

	r := server.Router()
	log.Printf("server listening on :%d", cfg.Port)
	log.Fatal(r.Run(fmt.Sprintf(":%d", cfg.Port)))
}
