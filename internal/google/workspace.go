package google

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/oauth2/google"
	admin "google.golang.org/api/admin/directory/v1"
	"google.golang.org/api/docs/v1"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/option"

	"calpilot/internal/models"
)

const maxDirectoryResults = 500

// WorkspaceClient discovers participating users and fetches their
// analysis instructions: Drive for the shared-document lookup, Docs for
// the document body, and the admin Directory for workspace-wide user
// enumeration.
type WorkspaceClient struct {
	logger  *slog.Logger
	creds   []byte
	docName string

	// adminEmail is a Workspace admin the service account impersonates
	// for Directory reads.
	adminEmail string
}

// NewWorkspaceClient creates a workspace client from service account
// JSON. docName is the instructions document name users share to opt in.
func NewWorkspaceClient(logger *slog.Logger, creds []byte, docName, adminEmail string) *WorkspaceClient {
	return &WorkspaceClient{logger: logger, creds: creds, docName: docName, adminEmail: adminEmail}
}

func (w *WorkspaceClient) tokenSource(ctx context.Context, subject string, scopes ...string) (option.ClientOption, error) {
	cfg, err := google.JWTConfigFromJSON(w.creds, scopes...)
	if err != nil {
		return nil, fmt.Errorf("failed to parse service account credentials: %w", err)
	}
	cfg.Subject = subject
	return option.WithTokenSource(cfg.TokenSource(ctx)), nil
}

// FindUsers returns every user who has shared an instructions document
// with the service account, paired with that document's ID.
func (w *WorkspaceClient) FindUsers(ctx context.Context) ([]models.InstructionsShare, error) {
	ts, err := w.tokenSource(ctx, "", drive.DriveReadonlyScope)
	if err != nil {
		return nil, err
	}
	service, err := drive.NewService(ctx, ts)
	if err != nil {
		return nil, fmt.Errorf("failed to create drive service: %w", err)
	}

	query := fmt.Sprintf("name = '%s'", w.docName)
	result, err := service.Files.List().
		Q(query).
		Spaces("drive").
		Fields("nextPageToken, files(id,owners(emailAddress))").
		Context(ctx).
		Do()
	if err != nil {
		return nil, fmt.Errorf("failed to search drive for instructions documents: %w", err)
	}

	var shares []models.InstructionsShare
	for _, file := range result.Files {
		for _, owner := range file.Owners {
			if owner.EmailAddress == "" {
				continue
			}
			shares = append(shares, models.InstructionsShare{User: owner.EmailAddress, DocID: file.Id})
		}
	}
	w.logger.Info("Found users with shared instructions.", "count", len(shares))
	return shares, nil
}

// GetInstructions fetches the plain text of an instructions document by
// concatenating the text runs of its body.
func (w *WorkspaceClient) GetInstructions(ctx context.Context, docID string) (string, error) {
	ts, err := w.tokenSource(ctx, "", docs.DocumentsReadonlyScope)
	if err != nil {
		return "", err
	}
	service, err := docs.NewService(ctx, ts)
	if err != nil {
		return "", fmt.Errorf("failed to create docs service: %w", err)
	}

	document, err := service.Documents.Get(docID).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("failed to get instructions document %s: %w", docID, err)
	}

	var content strings.Builder
	if document.Body != nil {
		for _, element := range document.Body.Content {
			if element.Paragraph == nil {
				continue
			}
			for _, textElement := range element.Paragraph.Elements {
				if textElement.TextRun != nil {
					content.WriteString(textElement.TextRun.Content)
				}
			}
		}
	}
	return content.String(), nil
}

// ListWorkspaceUsers enumerates all users in the workspace via the admin
// Directory, optionally filtered to the given email domains. Emails are
// lower-cased.
func (w *WorkspaceClient) ListWorkspaceUsers(ctx context.Context, validDomains []string) ([]string, error) {
	if w.adminEmail == "" {
		return nil, fmt.Errorf("directory reads require an admin email (set ADMIN_EMAIL)")
	}
	ts, err := w.tokenSource(ctx, w.adminEmail, admin.AdminDirectoryUserReadonlyScope)
	if err != nil {
		return nil, err
	}
	service, err := admin.NewService(ctx, ts)
	if err != nil {
		return nil, fmt.Errorf("failed to create directory service: %w", err)
	}

	result, err := service.Users.List().
		Customer("my_customer").
		MaxResults(maxDirectoryResults).
		OrderBy("email").
		Context(ctx).
		Do()
	if err != nil {
		return nil, fmt.Errorf("failed to list workspace users: %w", err)
	}

	allowed := make(map[string]bool, len(validDomains))
	for _, d := range validDomains {
		allowed[strings.ToLower(d)] = true
	}

	var emails []string
	for _, u := range result.Users {
		if u.PrimaryEmail == "" {
			continue
		}
		email := strings.ToLower(u.PrimaryEmail)
		if len(allowed) > 0 {
			if i := strings.LastIndex(email, "@"); i < 0 || !allowed[email[i+1:]] {
				continue
			}
		}
		emails = append(emails, email)
	}
	w.logger.Info("Found users in the workspace.", "count", len(emails))
	return emails, nil
}
