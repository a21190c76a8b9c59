package store

import "time"

// Mail providers a credential can belong to.
const (
	ProviderGoogle    = "google"
	ProviderMicrosoft = "microsoft"
)

// Credential holds one user's provider tokens. One row per user,
// overwritten on every successful authorization.
type Credential struct {
	UserEmail    string    `json:"userEmail"`
	Provider     string    `json:"provider"`
	AccessToken  string    `json:"-"`
	RefreshToken string    `json:"-"`
	Expiry       time.Time `json:"expiry"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// Folder is a user-defined classification bucket. The folder name doubles
// as the classification keyword.
type Folder struct {
	ID         string    `json:"id"`
	UserEmail  string    `json:"userEmail"`
	FolderName string    `json:"folderName"`
	CreatedAt  time.Time `json:"createdAt"`
}

// Message is a classified mail record. Date is the raw Date header string;
// the dedup identity is (UserEmail, Subject, From, Date), not a body hash.
type Message struct {
	ID         string    `json:"id"`
	UserEmail  string    `json:"userEmail"`
	FolderName string    `json:"folderName"`
	Subject    string    `json:"subject"`
	From       string    `json:"from"`
	Date       string    `json:"date"`
	Body       string    `json:"body"`
	CreatedAt  time.Time `json:"createdAt"`
}
