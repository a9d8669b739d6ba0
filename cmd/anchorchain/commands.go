package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/RushikeshHarne/Immortal-Logic-AnchorChain-Demo/pkg/api"
	"github.com/RushikeshHarne/Immortal-Logic-AnchorChain-Demo/pkg/contracts"
)

type commonFlags struct {
	rpcURL     string
	descriptor string
	jsonOutput bool
}

func (c *commonFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&c.rpcURL, "rpc", "", "Ledger JSON-RPC URL (overrides RPC_URL)")
	fs.StringVar(&c.descriptor, "descriptor", "", "Deployment descriptor path (overrides ANCHORCHAIN_DESCRIPTOR)")
	fs.BoolVar(&c.jsonOutput, "json", false, "Output results as JSON to stdout")
}

type packetFlags struct {
	file string
	p    contracts.ResurrectionPacket
}

func (pf *packetFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&pf.file, "packet", "", "Path to a packet JSON file (instead of the field flags)")
	fs.StringVar(&pf.p.AgentID, "agent", "", "Agent ID")
	fs.StringVar(&pf.p.SourceEmbodimentID, "source", "", "Source embodiment ID")
	fs.StringVar(&pf.p.TargetEmbodimentID, "target", "", "Target embodiment ID")
	fs.StringVar(&pf.p.IdentityCommitment, "identity", "", "Identity commitment (0x + 64 hex, or text to hash)")
	fs.StringVar(&pf.p.MissionCommitment, "mission", "", "Mission commitment (0x + 64 hex, or text to hash)")
	fs.StringVar(&pf.p.Jurisdiction, "jurisdiction", contracts.DefaultJurisdiction, "Jurisdiction tag")
}

func (pf *packetFlags) packet() (contracts.ResurrectionPacket, error) {
	if pf.file == "" {
		if pf.p.AgentID == "" {
			return pf.p, fmt.Errorf("--agent or --packet is required")
		}
		return pf.p, nil
	}
	data, err := os.ReadFile(pf.file)
	if err != nil {
		return contracts.ResurrectionPacket{}, fmt.Errorf("read packet: %w", err)
	}
	var p contracts.ResurrectionPacket
	if err := json.Unmarshal(data, &p); err != nil {
		return contracts.ResurrectionPacket{}, fmt.Errorf("parse packet: %w", err)
	}
	if p.Jurisdiction == "" {
		p.Jurisdiction = contracts.DefaultJurisdiction
	}
	return p, nil
}

func printJSON(w io.Writer, v any) {
	data, _ := json.MarshalIndent(v, "", "  ")
	_, _ = fmt.Fprintln(w, string(data))
}

// runAnchorCmd implements `anchorchain anchor`.
func runAnchorCmd(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("anchor", flag.ContinueOnError)
	cmd.SetOutput(stderr)
	var (
		common commonFlags
		pf     packetFlags
	)
	common.register(cmd)
	pf.register(cmd)
	if err := cmd.Parse(args); err != nil {
		return 2
	}
	p, err := pf.packet()
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}

	ctx := context.Background()
	rt, err := buildRuntime(ctx, stderr, runtimeOptions{needJournal: true, needSigner: true, rpcURL: common.rpcURL, descriptor: common.descriptor})
	if err != nil {
		return reportError(stderr, err)
	}
	defer rt.Close(ctx)

	receipt, err := rt.client.Anchor(ctx, p, rt.signer)
	if err != nil {
		return reportError(stderr, err)
	}
	if common.jsonOutput {
		printJSON(stdout, receipt)
		return 0
	}
	_, _ = fmt.Fprintf(stdout, "%s✅ Anchored%s %s\n", ColorGreen, ColorReset, p.AgentID)
	_, _ = fmt.Fprintf(stdout, "Tx:      %s\n", receipt.TxHash.Hex())
	_, _ = fmt.Fprintf(stdout, "Block:   %d\n", receipt.BlockNumber)
	_, _ = fmt.Fprintf(stdout, "Gas:     %d\n", receipt.GasUsed)
	_, _ = fmt.Fprintf(stdout, "Latency: %s\n", receipt.Latency.Round(time.Millisecond))
	if receipt.ExplorerURL != "" {
		_, _ = fmt.Fprintf(stdout, "Explorer: %s\n", receipt.ExplorerURL)
	}
	return 0
}

// runVerifyCmd implements `anchorchain verify`.
//
// Exit codes:
//
//	0 = verified
//	1 = no matching event
//	2 = runtime error
func runVerifyCmd(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("verify", flag.ContinueOnError)
	cmd.SetOutput(stderr)
	var (
		common    commonFlags
		pf        packetFlags
		fromBlock uint64
	)
	common.register(cmd)
	pf.register(cmd)
	cmd.Uint64Var(&fromBlock, "from-block", 0, "First block to scan")
	if err := cmd.Parse(args); err != nil {
		return 2
	}
	p, err := pf.packet()
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}

	ctx := context.Background()
	rt, err := buildRuntime(ctx, stderr, runtimeOptions{rpcURL: common.rpcURL, descriptor: common.descriptor})
	if err != nil {
		return reportError(stderr, err)
	}
	defer rt.Close(ctx)

	report, err := rt.client.Check(ctx, p, fromBlock)
	if err != nil {
		_ = reportError(stderr, err)
		return 2
	}

	if common.jsonOutput {
		printJSON(stdout, report)
	} else if report.Verified {
		_, _ = fmt.Fprintf(stdout, "%s✅ Resurrection VERIFIED%s\n", ColorGreen, ColorReset)
		_, _ = fmt.Fprintf(stdout, "Agent: %s\n", p.AgentID)
		_, _ = fmt.Fprintf(stdout, "Tx:    %s (block %d)\n", report.Match.TxHash.Hex(), report.Match.BlockNumber)
		_, _ = fmt.Fprintf(stdout, "%s\n", report.Summary)
	} else {
		_, _ = fmt.Fprintf(stdout, "%s❌ Resurrection NOT VERIFIED%s\n", ColorRed, ColorReset)
		_, _ = fmt.Fprintf(stdout, "Agent: %s\n", p.AgentID)
		for _, c := range report.Checks {
			if !c.Pass {
				_, _ = fmt.Fprintf(stdout, "  - %s: %s\n", c.Name, c.Reason)
			}
		}
	}
	if !report.Verified {
		return 1
	}
	return 0
}

// runEventsCmd implements `anchorchain events`.
func runEventsCmd(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("events", flag.ContinueOnError)
	cmd.SetOutput(stderr)
	var (
		common    commonFlags
		agentID   string
		fromBlock uint64
		toBlock   string
	)
	common.register(cmd)
	cmd.StringVar(&agentID, "agent", "", "Agent ID (empty lists every agent)")
	cmd.Uint64Var(&fromBlock, "from-block", 0, "First block to scan")
	cmd.StringVar(&toBlock, "to-block", "latest", "Last block to scan, or latest")
	if err := cmd.Parse(args); err != nil {
		return 2
	}
	var to *uint64
	if toBlock != "latest" && toBlock != "" {
		n, err := strconv.ParseUint(toBlock, 10, 64)
		if err != nil {
			_, _ = fmt.Fprintf(stderr, "Error: --to-block: %v\n", err)
			return 2
		}
		to = &n
	}

	ctx := context.Background()
	rt, err := buildRuntime(ctx, stderr, runtimeOptions{rpcURL: common.rpcURL, descriptor: common.descriptor})
	if err != nil {
		return reportError(stderr, err)
	}
	defer rt.Close(ctx)

	batch, err := rt.client.ReadEvents(ctx, agentID, fromBlock, to)
	if err != nil {
		return reportError(stderr, err)
	}
	if common.jsonOutput {
		printJSON(stdout, batch)
		return 0
	}
	for _, ev := range batch.Events {
		_, _ = fmt.Fprintf(stdout, "%d:%d  %s  %s -> %s  %s  %s\n",
			ev.BlockNumber, ev.LogIndex, ev.AgentID, ev.SourceEmbodimentID, ev.TargetEmbodimentID,
			ev.Time().Format(time.RFC3339), ev.TxHash.Hex())
	}
	_, _ = fmt.Fprintf(stdout, "%d event(s), %d skipped, blocks %d..%d\n", len(batch.Events), batch.Skipped, batch.FromBlock, batch.ToBlock)
	return 0
}

// runReconcileCmd implements `anchorchain reconcile`.
func runReconcileCmd(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("reconcile", flag.ContinueOnError)
	cmd.SetOutput(stderr)
	var common commonFlags
	common.register(cmd)
	if err := cmd.Parse(args); err != nil {
		return 2
	}

	ctx := context.Background()
	rt, err := buildRuntime(ctx, stderr, runtimeOptions{needJournal: true, rpcURL: common.rpcURL, descriptor: common.descriptor})
	if err != nil {
		return reportError(stderr, err)
	}
	defer rt.Close(ctx)

	res, err := rt.client.Reconcile(ctx)
	if err != nil {
		return reportError(stderr, err)
	}
	if common.jsonOutput {
		printJSON(stdout, res)
		return 0
	}
	for _, r := range res.Records {
		_, _ = fmt.Fprintf(stdout, "%s  %-9s  %s  %s\n", r.ID, r.Status, r.AgentID, r.TxHash)
	}
	_, _ = fmt.Fprintf(stdout, "checked %d: %d confirmed, %d failed, %d still pending\n",
		res.Checked, res.Confirmed, res.Failed, res.Pending)
	return 0
}

// runInfoCmd implements `anchorchain info`.
func runInfoCmd(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("info", flag.ContinueOnError)
	cmd.SetOutput(stderr)
	var common commonFlags
	common.register(cmd)
	if err := cmd.Parse(args); err != nil {
		return 2
	}

	ctx := context.Background()
	rt, err := buildRuntime(ctx, stderr, runtimeOptions{rpcURL: common.rpcURL, descriptor: common.descriptor})
	if err != nil {
		return reportError(stderr, err)
	}
	defer rt.Close(ctx)

	info, err := rt.client.Info(ctx)
	if err != nil {
		return reportError(stderr, err)
	}
	if common.jsonOutput {
		printJSON(stdout, info)
		return 0
	}
	_, _ = fmt.Fprintf(stdout, "Contract: %s\n", info.Contract)
	_, _ = fmt.Fprintf(stdout, "Network:  %s (chain %d)\n", info.Network, info.ChainID)
	_, _ = fmt.Fprintf(stdout, "Head:     %d\n", info.HeadBlock)
	_, _ = fmt.Fprintf(stdout, "Gas cap:  %d\n", info.GasLimit)
	if info.ExplorerURL != "" {
		_, _ = fmt.Fprintf(stdout, "Explorer: %s\n", info.ExplorerURL)
	}
	return 0
}

// runHealthCmd implements `anchorchain health`: 0 when the ledger answers.
func runHealthCmd(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("health", flag.ContinueOnError)
	cmd.SetOutput(stderr)
	var common commonFlags
	common.register(cmd)
	if err := cmd.Parse(args); err != nil {
		return 2
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	rt, err := buildRuntime(ctx, stderr, runtimeOptions{rpcURL: common.rpcURL, descriptor: common.descriptor})
	if err != nil {
		return reportError(stderr, err)
	}
	defer rt.Close(ctx)

	if err := rt.client.Health(ctx); err != nil {
		_, _ = fmt.Fprintf(stdout, "%s❌ ledger unreachable%s: %v\n", ColorRed, ColorReset, err)
		return 1
	}
	_, _ = fmt.Fprintf(stdout, "%s✅ ledger reachable%s (chain %d, %s)\n", ColorGreen, ColorReset, rt.client.ChainID(), rt.client.Network().Name)
	return 0
}

// runServeCmd implements `anchorchain serve`.
func runServeCmd(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("serve", flag.ContinueOnError)
	cmd.SetOutput(stderr)
	var (
		common commonFlags
		port   string
	)
	common.register(cmd)
	cmd.StringVar(&port, "port", "", "Listen port (overrides API_PORT)")
	if err := cmd.Parse(args); err != nil {
		return 2
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt, err := buildRuntime(ctx, stderr, runtimeOptions{needJournal: true, needSigner: true, rpcURL: common.rpcURL, descriptor: common.descriptor})
	if err != nil {
		return reportError(stderr, err)
	}
	defer rt.Close(context.WithoutCancel(ctx))

	if port == "" {
		port = rt.cfg.APIPort
	}
	srv := api.NewServer(rt.client, api.Options{
		Signer:       rt.signer,
		JWTSecret:    rt.cfg.APIJWTSecret,
		RateLimitRPS: rt.cfg.APIRateLimitRPS,
		Logger:       rt.logger,
	})
	rt.logger.InfoContext(ctx, "starting api", "config", rt.cfg)
	if err := srv.ListenAndServe(ctx, ":"+port); err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}
	_, _ = fmt.Fprintln(stdout, "shutdown complete")
	return 0
}
