package main

import (
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http/httptrace"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/tidwall/gjson"
	appstoreconnect "github.com/takimoto3/appstoreconnect-core"
	"github.com/takimoto3/appstoreconnect-core/internal/der"
	"github.com/takimoto3/appstoreconnect-core/token"
)

func newRootCmd(lookup func(string) (string, bool)) *cobra.Command {
	cfg := &config{}

	root := &cobra.Command{
		Use:           "ascjwt",
		Short:         "Issue and use App Store Connect API tokens",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return cfg.loadEnvFile()
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&cfg.EnvFile, "env-file", defaultEnvFile, "dotenv file with ASC_* variables")
	flags.StringVar(&cfg.KeyFile, "key-file", "", "path to the .p8 private key (env "+envKeyFile+")")
	flags.StringVar(&cfg.KeyID, "key-id", "", "API key ID (env "+envKeyID+")")
	flags.StringVar(&cfg.IssuerID, "issuer-id", "", "issuer ID (env "+envIssuerID+")")
	flags.BoolVarP(&cfg.Verbose, "verbose", "v", false, "debug logging and HTTP trace on stderr")

	root.AddCommand(
		newTokenCmd(cfg, lookup),
		newVerifyCmd(cfg, lookup),
		newGetCmd(cfg, lookup),
		newInspectCmd(cfg, lookup),
	)
	return root
}

func newTokenCmd(cfg *config, lookup func(string) (string, bool)) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Print a signed bearer token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.resolve(lookup, true); err != nil {
				return err
			}
			tp, err := newProvider(cfg, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			tok, err := tp.GetToken(time.Now())
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), tok)
			return nil
		},
	}
	cmd.Flags().DurationVar(&cfg.TTL, "ttl", token.TokenTTL, "token lifetime, at most 20m")
	return cmd
}

func newVerifyCmd(cfg *config, lookup func(string) (string, bool)) *cobra.Command {
	return &cobra.Command{
		Use:   "verify TOKEN",
		Short: "Check a token's signature against the key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.resolve(lookup, false); err != nil {
				return err
			}
			key, err := token.LoadPKCS8File(cfg.KeyFile)
			if err != nil {
				return err
			}
			if err := token.Verify(args[0], &key.PublicKey); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "signature OK")
			return nil
		},
	}
}

func newGetCmd(cfg *config, lookup func(string) (string, bool)) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "get PATH",
		Short: "GET an API path below /v1 and print the response body",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.resolve(lookup, true); err != nil {
				return err
			}
			logger := newLogger(cfg, cmd.ErrOrStderr())
			tp, err := newProvider(cfg, cmd.ErrOrStderr())
			if err != nil {
				return err
			}

			httpCfg := appstoreconnect.DefaultConfig()
			opts := []appstoreconnect.Option{
				appstoreconnect.WithLogger(logger),
				appstoreconnect.WithUserAgent("ascjwt"),
			}
			if cfg.Verbose {
				opts = append(opts, appstoreconnect.WithClientTrace(func(l *slog.Logger) *httptrace.ClientTrace {
					return appstoreconnect.DefaultClientTrace(l, slog.LevelDebug)
				}))
			}
			client, err := appstoreconnect.NewClient(appstoreconnect.ConfigureHTTPClientInitializer(&httpCfg), cfg.Host, tp, opts...)
			if err != nil {
				return err
			}
			defer client.CloseIdleConnections()

			body, err := client.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if cfg.Query == "" {
				_, err = cmd.OutOrStdout().Write(body)
				return err
			}
			return writeQuery(cmd.OutOrStdout(), body, cfg.Query)
		},
	}
	cmd.Flags().DurationVar(&cfg.TTL, "ttl", token.TokenTTL, "token lifetime, at most 20m")
	cmd.Flags().StringVar(&cfg.Query, "query", "", "print only the value at this gjson path, e.g. data.#.attributes.name")
	cmd.Flags().StringVar(&cfg.Host, "host", "", "API host (env "+envHost+", default "+appstoreconnect.DefaultHost+")")
	return cmd
}

// writeQuery prints the value at path in a JSON response body, one line.
func writeQuery(w io.Writer, body []byte, path string) error {
	if !gjson.ValidBytes(body) {
		return errors.New("response body is not JSON")
	}
	res := gjson.GetBytes(body, path)
	if !res.Exists() {
		return fmt.Errorf("query %q matched nothing", path)
	}
	_, err := fmt.Fprintln(w, res.String())
	return err
}

func newInspectCmd(cfg *config, lookup func(string) (string, bool)) *cobra.Command {
	return &cobra.Command{
		Use:   "inspect",
		Short: "Show the ASN.1 layout of the key without its values",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.resolve(lookup, false); err != nil {
				return err
			}
			data, err := os.ReadFile(cfg.KeyFile)
			if err != nil {
				return err
			}
			raw, err := base64.StdEncoding.DecodeString(token.StripPEM(string(data)))
			if err != nil {
				return fmt.Errorf("%w: %w", token.ErrNotBase64, err)
			}
			return describeKey(cmd.OutOrStdout(), raw)
		},
	}
}

// describeKey prints the PrivateKeyInfo layout and, when present, the
// ECPrivateKey nested in its third field.
func describeKey(w io.Writer, raw []byte) error {
	info, err := der.NewScanner(raw).ScanElement()
	if err != nil {
		return err
	}
	fmt.Fprint(w, "PrivateKeyInfo:\n", der.Describe(info))

	if info.Kind != der.KindSequence || len(info.Children) < 3 || info.Children[2].Kind != der.KindBytes {
		return nil
	}
	inner, err := der.NewScanner(info.Children[2].Bytes).ScanElement()
	if err != nil {
		return err
	}
	fmt.Fprint(w, "ECPrivateKey:\n", der.Describe(inner))
	return nil
}

func newLogger(cfg *config, w io.Writer) *slog.Logger {
	level := slog.LevelWarn
	if cfg.Verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

func newProvider(cfg *config, logw io.Writer) (*token.TokenProvider, error) {
	key, err := token.LoadPKCS8File(cfg.KeyFile)
	if err != nil {
		return nil, err
	}
	return token.NewProvider(cfg.KeyID, cfg.IssuerID, key,
		token.WithLogger(newLogger(cfg, logw)),
		token.WithTTL(cfg.TTL),
	), nil
}
