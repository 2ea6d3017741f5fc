package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/mentorscore/session-api/internal/model"
	"github.com/mentorscore/session-api/internal/normalize"
	"github.com/mentorscore/session-api/internal/projection"
	"github.com/mentorscore/session-api/internal/service"
	"github.com/mentorscore/session-api/internal/util"
)

func newNormalizeCmd() *cobra.Command {
	var project bool

	cmd := &cobra.Command{
		Use:   "normalize <file>",
		Short: "Print the canonical form of the session documents in a JSON file",
		Long: "Reads a session document, an array of documents or {\"sessions\": [...]} " +
			"(extended JSON envelopes accepted) and prints the normalized records. " +
			"With --project the public view is printed instead.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			docs, err := readDocuments(args[0])
			if err != nil {
				return err
			}

			out := make([]any, 0, len(docs))
			for _, doc := range docs {
				rec := normalize.Normalize(doc)
				if project {
					out = append(out, projection.View(projection.Finalize(rec)))
					continue
				}
				out = append(out, normalize.Document(rec))
			}
			return writeIndented(cmd.OutOrStdout(), out)
		},
	}
	cmd.Flags().BoolVar(&project, "project", false, "print the public view instead of the stored form")
	return cmd
}

func newImportCmd() *cobra.Command {
	var opts service.ImportOptions

	cmd := &cobra.Command{
		Use:   "import <file>",
		Short: "Upsert the session documents in a JSON file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, id := range []string{opts.MentorID, opts.UserID} {
				if id != "" && !util.IsValidIdentifier(id) {
					return fmt.Errorf("invalid identifier %q", id)
				}
			}
			docs, err := readDocuments(args[0])
			if err != nil {
				return err
			}

			return withServices(cmd.Context(), func(svc *service.SessionService) error {
				result := svc.Import(cmd.Context(), docs, opts)
				if err := writeIndented(cmd.OutOrStdout(), result); err != nil {
					return err
				}
				if result.Failed > 0 {
					return fmt.Errorf("%d of %d sessions failed", result.Failed, len(docs))
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&opts.MentorID, "mentor-id", "", "mentorId for documents that carry none")
	cmd.Flags().StringVar(&opts.UserID, "user-id", "", "userId for documents that carry none")
	cmd.Flags().BoolVar(&opts.FillGaps, "fill", false, "gap-fill and summarize while importing")
	return cmd
}

func newMigrateCmd() *cobra.Command {
	var (
		limit      int
		backupPath string
	)

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Re-normalize and gap-fill stored sessions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withServices(cmd.Context(), func(svc *service.SessionService) error {
				var backup io.Writer
				if backupPath != "" {
					f, err := os.Create(backupPath)
					if err != nil {
						return fmt.Errorf("create backup: %w", err)
					}
					defer f.Close()
					backup = f
				}

				report, err := svc.Migrate(cmd.Context(), limit, backup)
				if err != nil {
					return err
				}
				if backupPath != "" {
					log.Info().Str("path", backupPath).Msg("backup written")
				}
				return writeIndented(cmd.OutOrStdout(), report)
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum number of sessions (0 for all)")
	cmd.Flags().StringVar(&backupPath, "backup", "", "write the original documents to this file first")
	return cmd
}

func newBackfillCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "backfill",
		Short: "Rebuild sessions whose audio or video timeline is empty",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withServices(cmd.Context(), func(svc *service.SessionService) error {
				report, err := svc.Backfill(cmd.Context(), limit)
				if err != nil {
					return err
				}
				return writeIndented(cmd.OutOrStdout(), report)
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 100, "maximum number of sessions")
	return cmd
}

func newTokenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "token",
		Short: "Generate an ingest token and the hash for INGEST_TOKEN_HASH",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			token, err := util.GenerateToken()
			if err != nil {
				return fmt.Errorf("generate token: %w", err)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "token: %s\n", token)
			fmt.Fprintf(out, "INGEST_TOKEN_HASH=%s\n", util.HashToken(token))
			return nil
		},
	}
}

func newUserCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage login accounts",
	}
	cmd.AddCommand(newUserAddCmd())
	return cmd
}

func newUserAddCmd() *cobra.Command {
	var name, email, password, role string

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Create a login account (self-registration is disabled)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			userRole := model.UserRole(role)
			if !userRole.Valid() {
				return fmt.Errorf("invalid role %q: must be student, mentor or university", role)
			}
			if password == "" {
				password = os.Getenv("SESSIONCTL_PASSWORD")
			}
			if password == "" {
				return errors.New("a password is required (--password or SESSIONCTL_PASSWORD)")
			}

			return withAuth(cmd.Context(), func(svc *service.AuthService) error {
				user, err := svc.CreateUser(cmd.Context(), name, email, password, userRole)
				if err != nil {
					return err
				}
				log.Info().Str("userId", user.ID).Str("role", string(user.Role)).Msg("user created")
				return writeIndented(cmd.OutOrStdout(), user)
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "display name")
	cmd.Flags().StringVar(&email, "email", "", "login email")
	cmd.Flags().StringVar(&password, "password", "", "login password (defaults to $SESSIONCTL_PASSWORD)")
	cmd.Flags().StringVar(&role, "role", "", "student, mentor or university")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("role")
	return cmd
}

// readDocuments accepts a single document, an array of documents or
// {"sessions": [...]}.
func readDocuments(path string) ([]map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	switch t := v.(type) {
	case []any:
		return objects(t)
	case map[string]any:
		if sessions, ok := t["sessions"].([]any); ok {
			return objects(sessions)
		}
		return []map[string]any{t}, nil
	default:
		return nil, errors.New("expected a JSON object or array")
	}
}

func objects(items []any) ([]map[string]any, error) {
	out := make([]map[string]any, 0, len(items))
	for i, item := range items {
		doc, ok := item.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("item %d is not an object", i)
		}
		out = append(out, doc)
	}
	return out, nil
}

func writeIndented(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
