package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/brandguard/brandguard/core/infra/buildinfo"
	"github.com/brandguard/brandguard/core/rules"
	"github.com/spf13/cobra"
)

const defaultGateway = "http://localhost:8081"

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "brandguardctl",
		Short:         "Brand rule set tooling",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.AddCommand(validateCmd(), migrateCmd(), pushCmd(), healthCmd(), versionCmd())
	return cmd
}

func validateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <file>",
		Short: "Validate a V2 rule set and print its canonical form",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rs, err := loadRuleSet(args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), rs)
		},
	}
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate <file>",
		Short: "Convert a legacy V1 rule set to V2",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rs, err := migrateFile(args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), rs)
		},
	}
}

func pushCmd() *cobra.Command {
	var (
		gateway string
		legacy  bool
	)
	cmd := &cobra.Command{
		Use:   "push <brand-id> <file>",
		Short: "Store a rule set for a brand through the API",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := os.ReadFile(args[1])
			if err != nil {
				return err
			}
			path := "/api/v1/brands/" + args[0] + "/rules"
			if legacy {
				path += "/migrate"
			}
			body, err := doRequest(cmd.Context(), gateway, http.MethodPost, path, contentTypeFor(args[1]), raw)
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(append(body, '\n'))
			return err
		},
	}
	cmd.Flags().StringVar(&gateway, "gateway", envOr("BRANDGUARD_GATEWAY", defaultGateway), "API base URL")
	cmd.Flags().BoolVar(&legacy, "v1", false, "file holds a legacy V1 rule set")
	return cmd
}

func healthCmd() *cobra.Command {
	var gateway string
	cmd := &cobra.Command{
		Use:   "health",
		Short: "Check the API health endpoint",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			body, err := doRequest(cmd.Context(), gateway, http.MethodGet, "/health", "", nil)
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(append(body, '\n'))
			return err
		},
	}
	cmd.Flags().StringVar(&gateway, "gateway", envOr("BRANDGUARD_GATEWAY", defaultGateway), "API base URL")
	return cmd
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return printJSON(cmd.OutOrStdout(), buildinfo.Fields())
		},
	}
}

func loadRuleSet(path string) (*rules.RuleSet, error) {
	value, err := parseFile(path)
	if err != nil {
		return nil, err
	}
	return rules.Validate(value)
}

func migrateFile(path string) (*rules.RuleSet, error) {
	value, err := parseFile(path)
	if err != nil {
		return nil, err
	}
	v1, err := rules.DecodeV1(value)
	if err != nil {
		return nil, err
	}
	return rules.MigrateAndValidate(*v1)
}

func parseFile(path string) (any, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return rules.ParseBody(raw, contentTypeFor(path))
}

// contentTypeFor picks YAML for .yaml/.yml files and JSON otherwise.
func contentTypeFor(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return "application/yaml"
	}
	return "application/json"
}

func doRequest(ctx context.Context, gateway, method, path, contentType string, body []byte) ([]byte, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	var rdr io.Reader
	if body != nil {
		rdr = strings.NewReader(string(body))
	}
	req, err := http.NewRequestWithContext(ctx, method, strings.TrimRight(gateway, "/")+path, rdr)
	if err != nil {
		return nil, err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%s %s: %s: %s", method, path, resp.Status, strings.TrimSpace(string(data)))
	}
	return data, nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func envOr(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}
