package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/jessevdk/go-flags"

	"txfix/pkg/config"
	"txfix/pkg/errcode"
	"txfix/pkg/feebump"
	"txfix/pkg/logging"
	"txfix/pkg/parser"
	"txfix/pkg/service"
	"txfix/pkg/types"
)

var log = logging.Logger("MAIN")

// app is the state shared by the commands. Unexported fields are not
// scanned by go-flags.
type app struct {
	ctx  context.Context
	out  io.Writer
	opts *config.Options
	svc  *service.Service
}

func (a *app) service() (*service.Service, error) {
	if a.svc != nil {
		return a.svc, nil
	}
	svc, err := a.opts.Service()
	if err != nil {
		return nil, err
	}
	a.svc = svc
	return svc, nil
}

func (a *app) writeJSON(v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(a.out, string(b))
	return err
}

type txidArg struct {
	Txid string `positional-arg-name:"txid"`
}

type diagnoseCmd struct {
	app    *app
	Stream bool    `short:"s" long:"stream" description:"Print each check as a JSON line as soon as it completes"`
	Args   txidArg `positional-args:"yes" required:"yes"`
}

func (c *diagnoseCmd) Execute([]string) error {
	svc, err := c.app.service()
	if err != nil {
		return err
	}
	if !c.Stream {
		res, err := svc.Diagnose(c.app.ctx, c.Args.Txid)
		if err != nil {
			return err
		}
		return c.app.writeJSON(res)
	}

	events, err := svc.Stream(c.app.ctx, c.Args.Txid)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(c.app.out)
	for ev := range events {
		switch {
		case ev.Err != nil:
			return ev.Err
		case ev.Check != nil:
			if err := enc.Encode(ev.Check); err != nil {
				return err
			}
		case ev.Result != nil:
			return enc.Encode(ev.Result.Verdict)
		}
	}
	return c.app.ctx.Err()
}

type QROptions struct {
	QR     string `long:"qr" description:"Also write the PSBT as a PNG QR code to this file"`
	QRSize int    `long:"qrsize" description:"QR code width in pixels"`
}

func (q *QROptions) write(res *types.PsbtBuildResult) error {
	if q.QR == "" {
		return nil
	}
	png, err := feebump.EncodeQR(res, q.QRSize)
	if err != nil {
		return err
	}
	if err := os.WriteFile(q.QR, png, 0644); err != nil {
		return fmt.Errorf("write qr code: %w", err)
	}
	log.Infof("wrote PSBT QR code to %s", q.QR)
	return nil
}

type rbfCmd struct {
	app     *app
	FeeRate float64 `short:"f" long:"feerate" description:"Target fee rate in sat/vB (default: fastest recommended)"`
	QROptions
	Args txidArg `positional-args:"yes" required:"yes"`
}

func (c *rbfCmd) Execute([]string) error {
	svc, err := c.app.service()
	if err != nil {
		return err
	}
	res, err := svc.RBF(c.app.ctx, c.Args.Txid, c.FeeRate)
	if err != nil {
		return err
	}
	if err := c.write(res); err != nil {
		return err
	}
	return c.app.writeJSON(res)
}

type cpfpCmd struct {
	app     *app
	FeeRate float64 `short:"f" long:"feerate" description:"Target package fee rate in sat/vB (default: fastest recommended)"`
	Output  int     `short:"o" long:"output" default:"-1" description:"Parent output to spend (default: first spendable)"`
	To      string  `long:"to" description:"Destination address of the child (default: the spent output's address)"`
	QROptions
	Args txidArg `positional-args:"yes" required:"yes"`
}

func (c *cpfpCmd) Execute([]string) error {
	svc, err := c.app.service()
	if err != nil {
		return err
	}
	req := service.CPFPRequest{
		Txid:        c.Args.Txid,
		FeeRate:     c.FeeRate,
		Destination: c.To,
	}
	if c.Output >= 0 {
		idx := uint32(c.Output)
		req.OutputIndex = &idx
	}
	res, err := svc.CPFP(c.app.ctx, req)
	if err != nil {
		return err
	}
	if err := c.write(res); err != nil {
		return err
	}
	return c.app.writeJSON(res)
}

type broadcastCmd struct {
	app  *app
	Args struct {
		Hex string `positional-arg-name:"rawtx"`
	} `positional-args:"yes" required:"yes"`
}

func (c *broadcastCmd) Execute([]string) error {
	svc, err := c.app.service()
	if err != nil {
		return err
	}
	txid, err := svc.Broadcast(c.app.ctx, c.Args.Hex)
	if err != nil {
		return err
	}
	return c.app.writeJSON(map[string]any{"ok": true, "txid": txid})
}

// parseCmd decodes an offline fixture without touching the network.
type parseCmd struct {
	app    *app
	OutDir string `long:"outdir" description:"Also write <txid>.json into this directory"`
	Args   struct {
		Fixture string `positional-arg-name:"fixture.json"`
	} `positional-args:"yes" required:"yes"`
}

func (c *parseCmd) Execute([]string) error {
	data, err := os.ReadFile(c.Args.Fixture)
	if err != nil {
		return fmt.Errorf("%w: read fixture: %w", feebump.ErrInvalidParams, err)
	}
	var fixture types.Fixture
	if err := json.Unmarshal(data, &fixture); err != nil {
		return fmt.Errorf("%w: parse fixture JSON: %w", feebump.ErrInvalidParams, err)
	}
	tx, err := parser.ParseTransaction(fixture)
	if err != nil {
		return fmt.Errorf("%w: %w", feebump.ErrInvalidParams, err)
	}

	if c.OutDir != "" {
		if err := os.MkdirAll(c.OutDir, 0755); err != nil {
			return fmt.Errorf("create output directory: %w", err)
		}
		b, _ := json.MarshalIndent(tx, "", "  ")
		if err := os.WriteFile(filepath.Join(c.OutDir, tx.Txid+".json"), b, 0644); err != nil {
			return fmt.Errorf("write output file: %w", err)
		}
	}
	return c.app.writeJSON(tx)
}

type cliConfig struct {
	config.Options

	Diagnose  diagnoseCmd  `command:"diagnose" description:"Diagnose why a transaction is not confirming"`
	RBF       rbfCmd       `command:"rbf" description:"Build an unsigned replace-by-fee PSBT"`
	CPFP      cpfpCmd      `command:"cpfp" description:"Build an unsigned child-pays-for-parent PSBT"`
	Broadcast broadcastCmd `command:"broadcast" description:"Submit a signed transaction"`
	Parse     parseCmd     `command:"parse" description:"Decode a raw transaction fixture offline"`
}

func run(ctx context.Context, args []string, stdout io.Writer) int {
	cfg := &cliConfig{Options: config.DefaultOptions()}
	a := &app{ctx: ctx, out: stdout, opts: &cfg.Options}
	cfg.Diagnose.app = a
	cfg.RBF.app = a
	cfg.CPFP.app = a
	cfg.Broadcast.app = a
	cfg.Parse.app = a

	parser := flags.NewParser(cfg, flags.HelpFlag|flags.PassDoubleDash)
	parser.CommandHandler = func(cmd flags.Commander, args []string) error {
		if cmd == nil {
			return nil
		}
		if _, err := cfg.Validate(); err != nil {
			return fmt.Errorf("%w: %w", feebump.ErrInvalidParams, err)
		}
		if err := cfg.InitLogging(); err != nil {
			return fmt.Errorf("%w: %w", feebump.ErrInvalidParams, err)
		}
		return cmd.Execute(args)
	}

	_, err := config.Parse(parser, args)
	defer logging.Close()
	switch {
	case err == nil:
		return 0
	case errors.Is(err, config.ErrShowSubsystems):
		fmt.Fprintln(stdout, "Supported subsystems", logging.SupportedSubsystems())
		return 0
	case config.IsHelp(err):
		fmt.Fprintln(stdout, err)
		return 0
	}

	var fe *flags.Error
	if errors.As(err, &fe) {
		printError(stdout, errcode.InvalidRequest, err.Error())
		return 1
	}
	log.Debugf("command failed: %v", err)
	printError(stdout, errcode.Code(err), err.Error())
	return 1
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	code := run(ctx, os.Args[1:], os.Stdout)
	stop()
	os.Exit(code)
}

func printError(w io.Writer, code, message string) {
	type errorOutput struct {
		OK    bool             `json:"ok"`
		Error *types.ErrorInfo `json:"error"`
	}
	errOutput := errorOutput{
		OK: false,
		Error: &types.ErrorInfo{
			Code:    code,
			Message: message,
		},
	}
	errJSON, _ := json.Marshal(errOutput)
	fmt.Fprintln(w, string(errJSON))
	fmt.Fprintf(os.Stderr, "Error: %s\n", message)
}
