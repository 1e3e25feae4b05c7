package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"roochkit/go-sdk/internal/keystore"
	"roochkit/go-sdk/internal/metrics"
	"roochkit/go-sdk/internal/platform/privacylog"
	"roochkit/go-sdk/pkg/address"
	"roochkit/go-sdk/pkg/client"
	"roochkit/go-sdk/pkg/config"
	"roochkit/go-sdk/pkg/crypto"
	"roochkit/go-sdk/pkg/transport"
	"roochkit/go-sdk/pkg/transport/httprpc"
	"roochkit/go-sdk/pkg/transport/sse"
)

// EnvKeystorePassphrase holds the passphrase for sealed key files.
const EnvKeystorePassphrase = "LEDGER_KEYSTORE_PASSPHRASE"

// app carries what every subcommand needs once flags are parsed.
type app struct {
	stdout, stderr io.Writer
	configPath     string
	logLevel       string

	cfg      config.Config
	log      *slog.Logger
	registry *prometheus.Registry
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	a := &app{stdout: stdout, stderr: stderr}
	root := &cobra.Command{
		Use:           "ledgerctl",
		Short:         "Keys, addresses and live queries against a ledger node",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.init()
		},
	}
	root.PersistentFlags().StringVar(&a.configPath, "config", "", "path to ledger.yaml (optional)")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "warn", "debug | info | warn | error")

	root.AddCommand(
		a.versionCmd(),
		a.keygenCmd(),
		a.keyShowCmd(),
		a.addressCmd(),
		a.chainIDCmd(),
		a.subscribeCmd(),
	)
	return root
}

func (a *app) init() error {
	var level slog.Level
	if err := level.UnmarshalText([]byte(a.logLevel)); err != nil {
		return fmt.Errorf("invalid --log-level %q", a.logLevel)
	}
	handler := slog.NewTextHandler(a.stderr, &slog.HandlerOptions{Level: level})
	a.log = slog.New(privacylog.WrapHandler(handler))

	cfg, err := config.LoadFromPath(a.configPath).Resolve()
	if err != nil {
		return err
	}
	a.cfg = cfg
	a.registry = prometheus.NewRegistry()
	return nil
}

func (a *app) versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print build information",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := fmt.Fprintf(a.stdout, "ledgerctl version=%s commit=%s build_date=%s\n", version, commit, buildDate)
			return err
		},
	}
}

func parseScheme(name string) (crypto.Scheme, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "ed25519":
		return crypto.Ed25519, nil
	case "secp256k1":
		return crypto.Secp256k1, nil
	case "p256", "ecdsar1", "secp256r1":
		return crypto.P256, nil
	default:
		return 0, fmt.Errorf("%w: %q", crypto.ErrUnknownScheme, name)
	}
}

func (a *app) keygenCmd() *cobra.Command {
	var (
		schemeName string
		mnemonic   string
		newPhrase  bool
		path       string
		savePath   string
	)
	cmd := &cobra.Command{
		Use:   "keygen",
		Short: "Generate a keypair, optionally from a mnemonic",
		RunE: func(cmd *cobra.Command, args []string) error {
			scheme, err := parseScheme(schemeName)
			if err != nil {
				return err
			}
			if newPhrase {
				if mnemonic, err = crypto.GenerateMnemonic(); err != nil {
					return err
				}
			}
			kp, err := keypairFor(scheme, mnemonic, path)
			if err != nil {
				return err
			}
			if savePath != "" {
				if err := keystore.Save(savePath, os.Getenv(EnvKeystorePassphrase), kp); err != nil {
					return fmt.Errorf("save key: %w", err)
				}
				a.log.Info("key saved", "path", savePath, "address", kp.LedgerAddress().Hex())
			}
			if newPhrase {
				_, _ = fmt.Fprintf(a.stdout, "mnemonic:   %s\n", mnemonic)
			}
			return a.printSigner(kp)
		},
	}
	cmd.Flags().StringVar(&schemeName, "scheme", "ed25519", "ed25519 | secp256k1 | p256")
	cmd.Flags().StringVar(&mnemonic, "mnemonic", "", "derive from this BIP-39 phrase instead of random bytes")
	cmd.Flags().BoolVar(&newPhrase, "new-mnemonic", false, "generate a fresh phrase and derive from it")
	cmd.Flags().StringVar(&path, "path", "", "derivation path (scheme default when empty)")
	cmd.Flags().StringVar(&savePath, "save", "", "seal the key into this file using $"+EnvKeystorePassphrase)
	cmd.MarkFlagsMutuallyExclusive("mnemonic", "new-mnemonic")
	return cmd
}

func (a *app) keyShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "key-show <file>",
		Short: "Open a sealed key file and print its public details",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			kp, err := keystore.Load(args[0], os.Getenv(EnvKeystorePassphrase))
			if err != nil {
				return err
			}
			return a.printSigner(kp)
		},
	}
}

func keypairFor(scheme crypto.Scheme, mnemonic, path string) (crypto.Keypair, error) {
	if mnemonic == "" {
		return crypto.GenerateKeypair(scheme)
	}
	switch scheme {
	case crypto.Ed25519:
		if path == "" {
			path = crypto.DefaultEd25519Path
		}
		return crypto.Ed25519FromMnemonic(mnemonic, path)
	case crypto.Secp256k1:
		if path == "" {
			path = crypto.DefaultSecp256k1Path
		}
		return crypto.Secp256k1FromMnemonic(mnemonic, path)
	default:
		return nil, fmt.Errorf("%s keys cannot be derived from a mnemonic", scheme)
	}
}

func (a *app) printSigner(s crypto.Signer) error {
	ledger := s.LedgerAddress()
	_, _ = fmt.Fprintf(a.stdout, "scheme:     %s\n", s.Scheme())
	_, _ = fmt.Fprintf(a.stdout, "public key: %s\n", s.PublicKey())
	_, _ = fmt.Fprintf(a.stdout, "address:    %s\n", ledger.Hex())
	_, _ = fmt.Fprintf(a.stdout, "bech32:     %s\n", ledger.Bech32())
	if chain, err := s.ChainAddress(); err == nil {
		_, _ = fmt.Fprintf(a.stdout, "bitcoin:    %s\n", chain)
	} else if !errors.Is(err, crypto.ErrNoChainAddress) {
		return err
	}
	return nil
}

func (a *app) addressCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "address <address>",
		Short: "Convert between hex, bech32m and Bitcoin address forms",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			text := strings.TrimSpace(args[0])
			if ledger, err := address.ParseLedgerAddress(text); err == nil {
				_, _ = fmt.Fprintf(a.stdout, "address: %s\n", ledger.Hex())
				_, _ = fmt.Fprintf(a.stdout, "bech32:  %s\n", ledger.Bech32())
				return nil
			}
			chain, err := address.DecodeChainAddress(text)
			if err != nil {
				return err
			}
			ledger := chain.LedgerAddress()
			mca, err := address.NewBitcoinMultiChainAddress(chain).HumanReadable()
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(a.stdout, "kind:       %s\n", chain.Kind())
			_, _ = fmt.Fprintf(a.stdout, "network:    %s\n", chain.Network())
			_, _ = fmt.Fprintf(a.stdout, "address:    %s\n", ledger.Hex())
			_, _ = fmt.Fprintf(a.stdout, "bech32:     %s\n", ledger.Bech32())
			_, _ = fmt.Fprintf(a.stdout, "multichain: %s\n", mca)
			return nil
		},
	}
}

func (a *app) rpcClient(opts ...client.Option) (*client.Client, error) {
	tr, err := httprpc.New(a.cfg.RPC,
		httprpc.WithLogger(a.log),
		httprpc.WithMetrics(metrics.NewTransport(a.registry)),
	)
	if err != nil {
		return nil, err
	}
	opts = append([]client.Option{client.WithLogger(a.log), client.WithAuthOptions(a.cfg.Signing.AuthOptions()...)}, opts...)
	return client.New(tr, opts...), nil
}

func (a *app) chainIDCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "chain-id",
		Short: "Print the chain id reported by the RPC endpoint",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.rpcClient()
			if err != nil {
				return err
			}
			id, err := c.ChainID(cmd.Context())
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(a.stdout, id)
			return err
		},
	}
}

func (a *app) subscribeCmd() *cobra.Command {
	var (
		filter      string
		metricsAddr string
		limit       int
	)
	cmd := &cobra.Command{
		Use:       "subscribe <events|transactions>",
		Short:     "Stream events or transactions as JSON lines",
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{"events", "transactions"},
		RunE: func(cmd *cobra.Command, args []string) error {
			var params any
			if filter != "" {
				if !json.Valid([]byte(filter)) {
					return fmt.Errorf("--filter must be JSON")
				}
				params = json.RawMessage(filter)
			}
			if metricsAddr != "" {
				stopMetrics := a.serveMetrics(metricsAddr)
				defer stopMetrics()
			}
			return a.stream(cmd.Context(), args[0], params, limit)
		},
	}
	cmd.Flags().StringVar(&filter, "filter", "", "JSON filter passed to the node")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "serve prometheus metrics on this address")
	cmd.Flags().IntVar(&limit, "limit", 0, "stop after this many items (0 streams until interrupted)")
	return cmd
}

func (a *app) stream(ctx context.Context, kind string, params any, limit int) error {
	tr, err := sse.New(a.cfg.Subscription,
		sse.WithLogger(a.log),
		sse.WithMetrics(metrics.NewTransport(a.registry)),
	)
	if err != nil {
		return err
	}
	defer func() { _ = tr.Close() }()

	// done unblocks listeners before Close waits on the stream goroutines.
	done := make(chan struct{})
	defer close(done)

	events := make(chan json.RawMessage, 64)
	failed := make(chan error, 1)
	listener := transport.Listener{
		OnEvent: func(e json.RawMessage) {
			select {
			case events <- e:
			case <-done:
			}
		},
		OnError: func(err error) {
			select {
			case failed <- err:
			default:
			}
		},
	}

	c, err := a.rpcClient(client.WithSubscriber(tr))
	if err != nil {
		return err
	}
	var sub *client.Subscription
	switch kind {
	case "events":
		sub, err = c.SubscribeEvents(ctx, params, listener)
	default:
		sub, err = c.SubscribeTransactions(ctx, params, listener)
	}
	if err != nil {
		return err
	}
	defer sub.Unsubscribe()

	for n := 0; limit <= 0 || n < limit; n++ {
		select {
		case e := <-events:
			if _, err := fmt.Fprintln(a.stdout, string(e)); err != nil {
				return err
			}
		case err := <-failed:
			return err
		case <-ctx.Done():
			return nil
		}
	}
	return nil
}

func (a *app) serveMetrics(addr string) func() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.log.Error("metrics server failed", "addr", addr, "error", err)
		}
	}()
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
}
