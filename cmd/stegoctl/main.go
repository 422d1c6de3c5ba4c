package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	qrcode "github.com/skip2/go-qrcode"
	"github.com/stegochat/stegochat/internal/config"
	"github.com/stegochat/stegochat/internal/keyring"
	"github.com/stegochat/stegochat/internal/session"
	"github.com/stegochat/stegochat/internal/stego"
	"github.com/stegochat/stegochat/internal/transport"
)

// ctl bundles the one-shot client pieces. No background tasks: each
// command joins, acts once, and exits.
type ctl struct {
	cfg      *config.Config
	client   *transport.Client
	sessions *session.Store
	keys     *keyring.Keyring
	orch     *stego.Orchestrator
	jsonOut  bool
}

func main() {
	serverFlag := flag.String("server", "", "server base URL (overrides config)")
	nameFlag := flag.String("name", "", "display name (overrides config)")
	keyFlag := flag.String("key", "", "key override for decode")
	jsonFlag := flag.Bool("json", false, "output in JSON format")
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		printUsage()
		os.Exit(1)
	}

	cfg := config.LoadOrDefault(session.ConfigPath())
	if *serverFlag != "" {
		cfg.ServerURL = *serverFlag
	}
	if *nameFlag != "" {
		cfg.DisplayName = *nameFlag
	}

	client := transport.New(cfg.ServerURL, nil)
	sessions := session.NewStore()
	keys := keyring.New(client, nil, nil)
	c := &ctl{
		cfg:      cfg,
		client:   client,
		sessions: sessions,
		keys:     keys,
		orch:     stego.NewOrchestrator(client, sessions, keys, stego.NewBatch(), nil, nil),
		jsonOut:  *jsonFlag,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	switch args[0] {
	case "send":
		requireArgs(args, 2, "usage: stegoctl send <text>")
		c.join()
		fatalOn(c.orch.SendText(ctx, args[1]))
	case "send-image":
		requireArgs(args, 2, "usage: stegoctl send-image <path>")
		c.join()
		c.cmdSendImage(ctx, args[1])
	case "encode":
		requireArgs(args, 2, "usage: stegoctl encode <text>")
		sess := c.join()
		c.keys.Initialize(ctx, sess)
		fatalOn(c.orch.SendEncoded(ctx, args[1]))
		c.output(map[string]string{"key": c.keys.Active()}, "sent under key "+c.keys.Active())
	case "decode":
		requireArgs(args, 2, "usage: stegoctl [-key K] decode <image...>")
		c.cmdDecode(ctx, *keyFlag, args[1:])
	case "key":
		sess := c.join()
		c.keys.Initialize(ctx, sess)
		c.cmdKey(args[1:])
	case "upload":
		requireArgs(args, 2, "usage: stegoctl upload <path>")
		c.cmdUpload(ctx, args[1])
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", args[0])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, "usage: stegoctl [--server <url>] [--name <name>] [--json] <command>")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "commands:")
	fmt.Fprintln(os.Stderr, "  send <text>               Send a plain text message")
	fmt.Fprintln(os.Stderr, "  send-image <path>         Upload and send an image message")
	fmt.Fprintln(os.Stderr, "  encode <text>             Encode text and send the image sequence")
	fmt.Fprintln(os.Stderr, "  decode [-key K] <img...>  Decode an ordered image sequence to text")
	fmt.Fprintln(os.Stderr, "  key [qr <out.png>]        Show the assigned key, optionally as a QR image")
	fmt.Fprintln(os.Stderr, "  upload <path>             Upload an image and print its URL")
}

func (c *ctl) join() *session.Session {
	return c.sessions.Join(c.cfg.DisplayName)
}

func (c *ctl) cmdSendImage(ctx context.Context, path string) {
	f, err := os.Open(path)
	fatalOn(err)
	defer func() { _ = f.Close() }()
	fatalOn(c.orch.SendImageData(ctx, filepath.Base(path), f))
}

func (c *ctl) cmdDecode(ctx context.Context, keyOverride string, paths []string) {
	for _, p := range paths {
		data, err := os.ReadFile(p)
		fatalOn(err)
		c.orch.Batch().Add(filepath.Base(p), data)
	}
	if keyOverride == "" {
		sess := c.join()
		c.keys.Initialize(ctx, sess)
	}
	text, err := c.orch.Decode(ctx, keyOverride)
	fatalOn(err)
	c.output(map[string]string{"text": text}, text)
}

func (c *ctl) cmdKey(rest []string) {
	key := c.keys.Active()
	if len(rest) >= 2 && rest[0] == "qr" {
		fatalOn(qrcode.WriteFile(key, qrcode.Medium, 256, rest[1]))
		c.output(map[string]string{"key": key, "qr": rest[1]}, fmt.Sprintf("%s (QR written to %s)", key, rest[1]))
		return
	}
	c.output(map[string]any{"key": key, "serverSynced": c.keys.ServerSynced()}, key)
}

func (c *ctl) cmdUpload(ctx context.Context, path string) {
	f, err := os.Open(path)
	fatalOn(err)
	defer func() { _ = f.Close() }()
	url, err := c.client.UploadImage(ctx, filepath.Base(path), f)
	fatalOn(err)
	c.output(map[string]string{"url": url}, c.client.ResolveImageURL(url))
}

func (c *ctl) output(v any, plain string) {
	if c.jsonOut {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(v)
		return
	}
	fmt.Println(plain)
}

func requireArgs(args []string, n int, usage string) {
	if len(args) < n {
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(1)
	}
}

func fatalOn(err error) {
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
