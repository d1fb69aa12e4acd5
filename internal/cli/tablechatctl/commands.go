package tablechatctl

import (
	"bytes"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
)

func newTablesCmd(c *client, stdout io.Writer) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tables",
		Short: "Manage registered database tables",
	}
	cmd.AddCommand(
		simpleCmd(c, stdout, "available", "List every table in the database", http.MethodGet, "/v1/available-tables"),
		simpleCmd(c, stdout, "list", "List registered tables", http.MethodGet, "/v1/tables"),
		&cobra.Command{
			Use:   "register <table>",
			Short: "Register a table and generate its description",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return c.printJSON(cmd.Context(), stdout, http.MethodPost, "/v1/tables", map[string]string{"table_name": args[0]})
			},
		},
		&cobra.Command{
			Use:   "describe <table> <description>",
			Short: "Replace the description of a registered table",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				return c.printJSON(cmd.Context(), stdout, http.MethodPut, "/v1/tables/"+url.PathEscape(args[0]), map[string]string{"description": args[1]})
			},
		},
		&cobra.Command{
			Use:   "unregister <table>",
			Short: "Unregister a table",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return c.printJSON(cmd.Context(), stdout, http.MethodDelete, "/v1/tables/"+url.PathEscape(args[0]), nil)
			},
		},
	)
	return cmd
}

func newUploadsCmd(c *client, stdout io.Writer) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "uploads",
		Short: "Manage uploaded documents",
	}

	var output string
	source := &cobra.Command{
		Use:   "source <table>",
		Short: "Download the original document of an uploaded table",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := c.do(cmd.Context(), http.MethodGet, "/v1/uploads/"+url.PathEscape(args[0])+"/source", "", nil)
			if err != nil {
				return err
			}
			if output == "" || output == "-" {
				_, _ = stdout.Write(raw)
				return nil
			}
			if err := os.WriteFile(output, raw, 0o644); err != nil {
				return &requestError{err: fmt.Errorf("write %s: %w", output, err)}
			}
			return nil
		},
	}
	source.Flags().StringVarP(&output, "output", "o", "", "write the document to this path instead of stdout")

	cmd.AddCommand(
		simpleCmd(c, stdout, "list", "List live uploaded tables", http.MethodGet, "/v1/uploads"),
		&cobra.Command{
			Use:   "add <file>",
			Short: "Upload a CSV, Excel or Parquet document",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				body, contentType, err := multipartFile(args[0])
				if err != nil {
					return &requestError{err: err}
				}
				raw, err := c.do(cmd.Context(), http.MethodPost, "/v1/uploads", contentType, body)
				if err != nil {
					return err
				}
				writeBody(stdout, raw)
				return nil
			},
		},
		&cobra.Command{
			Use:   "remove <table>",
			Short: "Remove an uploaded table",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return c.printJSON(cmd.Context(), stdout, http.MethodDelete, "/v1/uploads/"+url.PathEscape(args[0]), nil)
			},
		},
		source,
	)
	return cmd
}

func newAskCmd(c *client, stdout io.Writer) *cobra.Command {
	var tables []string
	cmd := &cobra.Command{
		Use:   "ask --table <name> [--table <name>...] <question>",
		Short: "Ask a question over the selected tables",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.printJSON(cmd.Context(), stdout, http.MethodPost, "/v1/chat", map[string]any{
				"message": strings.Join(args, " "),
				"tables":  tables,
			})
		},
	}
	cmd.Flags().StringSliceVarP(&tables, "table", "t", nil, "table to query (repeatable or comma separated)")
	_ = cmd.MarkFlagRequired("table")
	return cmd
}

func multipartFile(path string) (*bytes.Buffer, string, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, "", fmt.Errorf("read %s: %w", path, err)
	}
	buf := &bytes.Buffer{}
	writer := multipart.NewWriter(buf)
	part, err := writer.CreateFormFile("file", filepath.Base(path))
	if err != nil {
		return nil, "", fmt.Errorf("build upload: %w", err)
	}
	if _, err := part.Write(content); err != nil {
		return nil, "", fmt.Errorf("build upload: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, "", fmt.Errorf("build upload: %w", err)
	}
	return buf, writer.FormDataContentType(), nil
}
