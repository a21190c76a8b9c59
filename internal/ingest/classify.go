package ingest

import "strings"

// Classify maps a message to at most one folder. Folder names are tried
// in the order given (creation order); the first name that appears as a
// case-insensitive substring of the subject or the body wins. No match
// means the message is dropped; there is no default bucket.
//
// Substring matching is deliberately permissive: a folder named "tax"
// matches a body containing "syntax". Known limitation, kept because
// changing it would change which folder existing mail lands in.
func Classify(subject, body string, folderNames []string) (string, bool) {
	lowerSubject := strings.ToLower(subject)
	lowerBody := strings.ToLower(body)

	for _, name := range folderNames {
		keyword := strings.ToLower(name)
		if strings.Contains(lowerSubject, keyword) || strings.Contains(lowerBody, keyword) {
			return name, true
		}
	}

	return "", false
}
