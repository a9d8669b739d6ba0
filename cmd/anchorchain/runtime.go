package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/time/rate"

	"github.com/RushikeshHarne/Immortal-Logic-AnchorChain-Demo/pkg/anchor"
	"github.com/RushikeshHarne/Immortal-Logic-AnchorChain-Demo/pkg/chain"
	"github.com/RushikeshHarne/Immortal-Logic-AnchorChain-Demo/pkg/config"
	"github.com/RushikeshHarne/Immortal-Logic-AnchorChain-Demo/pkg/contracts"
	"github.com/RushikeshHarne/Immortal-Logic-AnchorChain-Demo/pkg/nonce"
	"github.com/RushikeshHarne/Immortal-Logic-AnchorChain-Demo/pkg/observability"
	"github.com/RushikeshHarne/Immortal-Logic-AnchorChain-Demo/pkg/policy"
	"github.com/RushikeshHarne/Immortal-Logic-AnchorChain-Demo/pkg/signer"
	"github.com/RushikeshHarne/Immortal-Logic-AnchorChain-Demo/pkg/store"
	"github.com/RushikeshHarne/Immortal-Logic-AnchorChain-Demo/pkg/submitter"
	"github.com/RushikeshHarne/Immortal-Logic-AnchorChain-Demo/pkg/txbuilder"
)

// dialBackend is a variable to allow a simulated ledger in tests.
var dialBackend = func(ctx context.Context, rpcURL string) (chain.Backend, error) {
	return chain.Dial(ctx, rpcURL)
}

// runtime is everything one command needs, built from the environment.
type runtime struct {
	cfg      *config.Config
	client   *anchor.Client
	signer   signer.Signer
	provider *observability.Provider
	logger   *slog.Logger
	closers  []func() error
}

type runtimeOptions struct {
	needJournal bool
	needSigner  bool
	rpcURL      string
	descriptor  string
}

func (r *runtime) Close(ctx context.Context) {
	if r.provider != nil {
		_ = r.provider.Shutdown(ctx)
	}
	for i := len(r.closers) - 1; i >= 0; i-- {
		_ = r.closers[i]()
	}
}

func newLogger(w io.Writer, cfg *config.Config) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: cfg.Level()}))
}

// bindContract resolves the contract from ANCHORCHAIN_ADDRESS (+ optional
// ABI file) or, failing that, from the deployment descriptor.
func bindContract(cfg *config.Config) (*chain.Binding, int64, error) {
	if cfg.ContractAddress != "" {
		if !common.IsHexAddress(cfg.ContractAddress) {
			return nil, 0, fmt.Errorf("ANCHORCHAIN_ADDRESS %q is not an address", cfg.ContractAddress)
		}
		var abiJSON []byte
		if cfg.ABIPath != "" {
			data, err := os.ReadFile(cfg.ABIPath)
			if err != nil {
				return nil, 0, fmt.Errorf("read ABI: %w", err)
			}
			abiJSON = data
		}
		b, err := chain.NewBinding(common.HexToAddress(cfg.ContractAddress), abiJSON)
		return b, 0, err
	}
	d, err := chain.LoadDescriptor(cfg.DescriptorPath)
	if err != nil {
		return nil, 0, err
	}
	b, err := chain.BindDescriptor(d)
	if err != nil {
		return nil, 0, err
	}
	return b, d.ChainID, nil
}

func feeParams(cfg *config.Config) txbuilder.FeeParams {
	switch cfg.FeeMode() {
	case "legacy":
		return txbuilder.FeeParams{GasPrice: txbuilder.Gwei(cfg.GasPriceGwei)}
	case "dynamic":
		return txbuilder.FeeParams{
			MaxFeePerGas:         txbuilder.Gwei(cfg.MaxFeeGwei),
			MaxPriorityFeePerGas: txbuilder.Gwei(cfg.PriorityFeeGwei),
		}
	default:
		return txbuilder.FeeParams{}
	}
}

func networks(profiles map[int64]config.NetworkProfile) map[int64]anchor.Network {
	out := make(map[int64]anchor.Network, len(profiles))
	for id, p := range profiles {
		out[id] = anchor.Network{ChainID: id, Name: p.Name, ExplorerURL: p.ExplorerURL, Local: p.Local}
	}
	return out
}

func buildRuntime(ctx context.Context, stderr io.Writer, ro runtimeOptions) (_ *runtime, err error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if ro.rpcURL != "" {
		cfg.RPCURL = ro.rpcURL
	}
	if ro.descriptor != "" {
		cfg.DescriptorPath = ro.descriptor
		cfg.ContractAddress = ""
	}
	logger := newLogger(stderr, cfg)
	rt := &runtime{cfg: cfg, logger: logger}
	defer func() {
		if err != nil {
			rt.Close(context.WithoutCancel(ctx))
		}
	}()

	profiles, err := config.LoadNetworkProfiles(cfg.NetworkProfiles)
	if err != nil {
		return nil, err
	}
	binding, descriptorChain, err := bindContract(cfg)
	if err != nil {
		return nil, err
	}
	expectedChain := cfg.ChainID
	if expectedChain == 0 {
		expectedChain = descriptorChain
	}
	if p, ok := profiles[expectedChain]; ok {
		p.Apply(cfg)
	}

	raw, err := dialBackend(ctx, cfg.RPCURL)
	if err != nil {
		return nil, err
	}
	if c, ok := raw.(interface{ Close() }); ok {
		rt.closers = append(rt.closers, func() error { c.Close(); return nil })
	}
	var limiter *rate.Limiter
	if cfg.RPCRateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RPCRateLimit), max(1, int(cfg.RPCRateLimit)))
	}
	backend := chain.NewResilient(raw, chain.ResilientOptions{Limiter: limiter, Logger: logger})

	rt.provider, err = observability.New(ctx, &observability.Config{
		ServiceName:    "anchorchain",
		ServiceVersion: version,
		Environment:    getenvDefault("ENVIRONMENT", "development"),
		OTLPEndpoint:   cfg.OTLPEndpoint,
		SampleRate:     1.0,
		Enabled:        cfg.OTelEnabled,
		Insecure:       true,
	})
	if err != nil {
		return nil, err
	}
	sink, err := observability.NewMetrics(rt.provider.Meter())
	if err != nil {
		return nil, err
	}

	opts := []anchor.Option{
		anchor.WithExpectedChainID(expectedChain),
		anchor.WithNetworks(networks(profiles)),
		anchor.WithFees(feeParams(cfg)),
		anchor.WithGasLimit(cfg.GasLimit),
		anchor.WithLogSpan(cfg.LogBlockSpan),
		anchor.WithSubmitter(submitter.Options{
			Confirmations: cfg.Confirmations,
			Timeout:       cfg.ConfirmationTimeout,
			PollInterval:  cfg.PollInterval,
		}),
		anchor.WithSink(sink),
		anchor.WithProvider(rt.provider),
		anchor.WithLogger(logger),
	}

	if cfg.RedisAddr != "" {
		rc := nonce.NewRedisClient(cfg.RedisAddr, os.Getenv("REDIS_PASSWORD"), 0)
		rt.closers = append(rt.closers, rc.Close)
		opts = append(opts, anchor.WithNonceManager(nonce.NewRedis(rc, backend)))
	}
	if cfg.Policy != "" {
		pol, err := policy.FromExpr(cfg.Policy)
		if err != nil {
			return nil, fmt.Errorf("ANCHOR_POLICY: %w", err)
		}
		opts = append(opts, anchor.WithPolicy(pol))
	}
	if ro.needJournal {
		j, db, err := store.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		rt.closers = append(rt.closers, db.Close)
		opts = append(opts, anchor.WithJournal(j))
	}
	if ro.needSigner && cfg.PrivateKey != "" {
		key, err := signer.FromHex(cfg.PrivateKey)
		if err != nil {
			return nil, err
		}
		rt.signer = key
	}

	rt.client, err = anchor.New(ctx, backend, binding, opts...)
	if err != nil {
		return nil, err
	}
	return rt, nil
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// exitCode maps an error onto the process exit code.
func exitCode(err error) int {
	switch contracts.KindOf(err) {
	case contracts.KindConfirmationTimeout:
		return 3
	case contracts.KindSubmissionRejected, contracts.KindPolicyDenied, contracts.KindNetworkUnavailable:
		return 1
	default:
		return 2
	}
}

func reportError(stderr io.Writer, err error) int {
	var ce *contracts.Error
	if errors.As(err, &ce) {
		_, _ = fmt.Fprintf(stderr, "%sError [%s, outcome=%s]:%s %v\n", ColorRed, ce.Kind, ce.Kind.Outcome(), ColorReset, err)
		if ce.TxHash != "" && ce.Kind.Outcome() != contracts.OutcomeFailed {
			_, _ = fmt.Fprintf(stderr, "Transaction %s may still be included; run `anchorchain reconcile` before resubmitting.\n", ce.TxHash)
		}
	} else {
		_, _ = fmt.Fprintf(stderr, "%sError:%s %v\n", ColorRed, ColorReset, err)
	}
	return exitCode(err)
}
