// Command mviewd is a demo host for the mview CRDT views: it persists
// a hub of named register/set/list/text views to a local SQLite file
// and keeps them in sync with any peers it discovers or pairs with.
// Grounded on the structure of the teacher's cmd/vaultd/main.go:
// subcommand dispatch over os.Args, per-invocation engine construction
// for one-shot commands, a long-running daemon command for sync.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"golang.org/x/term"

	"github.com/amaydixit11/mview/internal/host"
	"github.com/amaydixit11/mview/internal/search"
	"github.com/amaydixit11/mview/internal/store"
	"github.com/amaydixit11/mview/internal/transport"
	"github.com/amaydixit11/mview/pkg/crdtkit"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cmd := os.Args[1]
	args := os.Args[2:]

	switch cmd {
	case "daemon":
		cmdDaemon(args)
	case "invite":
		cmdInvite(args)
	case "pair":
		cmdPair(args)
	case "status":
		cmdStatus(args)
	case "search":
		cmdSearch(args)
	case "set":
		cmdSet(args)
	case "add":
		cmdAdd(args)
	case "rm":
		cmdRemove(args)
	case "help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", cmd)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`mviewd - demo host for the mview CRDT library

Usage: mviewd <command> [options]

Commands:
  daemon   Start a sync daemon (discovers peers on LAN, optional DHT)
  invite   Print a signed invite code for this node's identity
  pair     Connect to a peer using the "Full code" printed by invite
  status   Show every persisted view and a short summary of its state
  search   Full-text search over every view's current content: mviewd search [--kind <kind>] [--limit <n>] <query>
  set      Apply a register update: mviewd set [--after <tag>] <view> <tag> <value>
  add      Add a value to a set view: mviewd add <view> <tag> <value>
  rm       Remove a value from a set view: mviewd rm <view> <tag> <value>
  help     Show this help`)
}

func dataDir(args []string) string {
	for i, a := range args {
		if a == "--data" && i+1 < len(args) {
			return args[i+1]
		}
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".mviewd")
}

func openStore(dir string) (*store.Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	return store.Open(filepath.Join(dir, "views.db"))
}

// withHub opens the store at dir, hydrates a Hub from it, runs fn,
// and persists the hub back before closing. Mirrors the teacher's
// "construct an engine, operate, defer Close" one-shot CLI pattern.
func withHub(dir string, fn func(h *host.Hub)) {
	st, err := openStore(dir)
	if err != nil {
		log.Fatalf("open store: %v", err)
	}
	defer st.Close()

	h := host.NewHub(crdtkit.Options{})
	if err := h.LoadAll(st); err != nil {
		log.Fatalf("load views: %v", err)
	}

	fn(h)

	if err := h.SaveAll(st, func() int64 { return time.Now().UnixNano() }); err != nil {
		log.Fatalf("save views: %v", err)
	}
}

func cmdSet(args []string) {
	fs := flag.NewFlagSet("set", flag.ExitOnError)
	dir := fs.String("data", "", "data directory")
	after := fs.String("after", "", "previous tag this update supersedes")
	fs.Parse(args)
	positional := fs.Args()
	if len(positional) < 3 {
		fmt.Fprintln(os.Stderr, "Usage: mviewd set [--data dir] [--after tag] <view> <tag> <value>")
		os.Exit(1)
	}
	view, tag, value := positional[0], positional[1], positional[2]

	encoded, err := json.Marshal(value)
	if err != nil {
		log.Fatalf("encode value: %v", err)
	}

	d := *dir
	if d == "" {
		d = dataDir(args)
	}
	withHub(d, func(h *host.Hub) {
		unlock := h.Lock(view)
		defer unlock()
		var prev []string
		if *after != "" {
			prev = []string{*after}
		}
		h.Register(view).Set(prev, tag, encoded)
	})
	fmt.Printf("%s[%s] = %s\n", view, tag, value)
}

func cmdAdd(args []string) {
	fs := flag.NewFlagSet("add", flag.ExitOnError)
	dir := fs.String("data", "", "data directory")
	fs.Parse(args)
	positional := fs.Args()
	if len(positional) < 3 {
		fmt.Fprintln(os.Stderr, "Usage: mviewd add [--data dir] <view> <tag> <value>")
		os.Exit(1)
	}
	view, tag, value := positional[0], positional[1], positional[2]

	d := *dir
	if d == "" {
		d = dataDir(args)
	}
	withHub(d, func(h *host.Hub) {
		unlock := h.Lock(view)
		defer unlock()
		h.Set(view).Add(tag, value)
	})
	fmt.Printf("added %q to %s via tag %s\n", value, view, tag)
}

func cmdRemove(args []string) {
	fs := flag.NewFlagSet("rm", flag.ExitOnError)
	dir := fs.String("data", "", "data directory")
	fs.Parse(args)
	positional := fs.Args()
	if len(positional) < 3 {
		fmt.Fprintln(os.Stderr, "Usage: mviewd rm [--data dir] <view> <tag> <value>")
		os.Exit(1)
	}
	view, tag, value := positional[0], positional[1], positional[2]

	d := *dir
	if d == "" {
		d = dataDir(args)
	}
	withHub(d, func(h *host.Hub) {
		unlock := h.Lock(view)
		defer unlock()
		h.Set(view).Remove(value, tag)
	})
	fmt.Printf("removed %q from %s via tag %s\n", value, view, tag)
}

func cmdStatus(args []string) {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	dir := fs.String("data", "", "data directory")
	fs.Parse(args)

	d := *dir
	if d == "" {
		d = dataDir(args)
	}
	withHub(d, func(h *host.Hub) {
		views := h.Views()
		if len(views) == 0 {
			fmt.Println("No views yet.")
			return
		}

		width := 80
		if w, _, err := term.GetSize(int(os.Stdout.Fd())); err == nil && w > 0 {
			width = w
		}

		fmt.Printf("%-24s %-10s %s\n", "VIEW", "KIND", "SUMMARY")
		for _, name := range views {
			kind, _ := h.Kind(name)
			summary := summarize(h, name, kind)
			if len(summary) > width-36 && width > 36 {
				summary = summary[:width-36] + "..."
			}
			fmt.Printf("%-24s %-10s %s\n", name, kind, summary)
		}
	})
}

func summarize(h *host.Hub, name, kind string) string {
	switch kind {
	case string(host.KindRegister):
		v, ok := h.Register(name).ToObject()
		if !ok {
			return "(empty)"
		}
		return string(v)
	case string(host.KindSet):
		return fmt.Sprintf("%d live values", h.Set(name).Count())
	case string(host.KindList):
		return fmt.Sprintf("%d entries", h.List(name).Count())
	case string(host.KindText):
		return h.Text(name).String()
	default:
		return ""
	}
}

// cmdSearch rebuilds an in-memory Bleve index from the hub's current
// state and queries it. A one-shot CLI invocation builds fresh state
// on every call the same way cmdStatus/cmdSet do, so an in-memory
// index rebuilt via Reindex is always consistent with what's on disk
// without needing to keep a persistent search.bleve directory in sync
// across invocations.
func cmdSearch(args []string) {
	fs := flag.NewFlagSet("search", flag.ExitOnError)
	dir := fs.String("data", "", "data directory")
	kind := fs.String("kind", "", "filter to one view kind (register, set, list, text)")
	limit := fs.Int("limit", 0, "max results (0 = default 50)")
	fs.Parse(args)
	positional := fs.Args()
	if len(positional) < 1 {
		fmt.Fprintln(os.Stderr, "Usage: mviewd search [--data dir] [--kind kind] [--limit n] <query>")
		os.Exit(1)
	}
	query := positional[0]

	d := *dir
	if d == "" {
		d = dataDir(args)
	}

	idx, err := search.NewMemoryIndex()
	if err != nil {
		log.Fatalf("create search index: %v", err)
	}
	defer idx.Close()

	var results []search.SearchResult
	withHub(d, func(h *host.Hub) {
		if err := h.Reindex(idx); err != nil {
			log.Fatalf("reindex: %v", err)
		}
		results, err = h.Search(idx, query, search.SearchOptions{Kind: *kind, Limit: *limit})
		if err != nil {
			log.Fatalf("search: %v", err)
		}
	})

	if len(results) == 0 {
		fmt.Println("No matches.")
		return
	}
	for _, r := range results {
		fmt.Printf("%-24s score=%.3f\n", r.Name, r.Score)
	}
}

func cmdDaemon(args []string) {
	fs := flag.NewFlagSet("daemon", flag.ExitOnError)
	name := fs.String("name", "mviewd", "node name for logging")
	dir := fs.String("data", "", "data directory")
	port := fs.Int("port", 0, "port to listen on (0 = random)")
	dht := fs.Bool("dht", false, "enable DHT for global peer discovery")
	fs.Parse(args)

	d := *dir
	if d == "" {
		d = dataDir(nil)
	}
	st, err := openStore(d)
	if err != nil {
		log.Fatalf("open store: %v", err)
	}
	defer st.Close()

	h := host.NewHub(crdtkit.Options{})
	if err := h.LoadAll(st); err != nil {
		log.Fatalf("load views: %v", err)
	}

	cfg := transport.DefaultConfig()
	if *port > 0 {
		cfg.ListenAddrs = []string{fmt.Sprintf("/ip4/0.0.0.0/tcp/%d", *port)}
	}
	cfg.EnableDHT = *dht
	cfg.AllowlistPath = d
	cfg.Logger = stdLogger{}

	svc, err := transport.NewService(h, cfg)
	if err != nil {
		log.Fatalf("create sync service: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	if err := svc.Start(ctx); err != nil {
		log.Fatalf("start sync service: %v", err)
	}

	log.Printf("%s started, discovering peers...", *name)

	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	go func() {
		for range ticker.C {
			if err := h.SaveAll(st, func() int64 { return time.Now().UnixNano() }); err != nil {
				log.Printf("periodic save failed: %v", err)
			}
			m := svc.Metrics()
			log.Printf("peers=%d syncs=%d/%d", len(svc.Peers()), m.SyncSuccesses, m.SyncAttempts)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Printf("shutting down...")
	cancel()
	svc.Stop()
	if err := h.SaveAll(st, func() int64 { return time.Now().UnixNano() }); err != nil {
		log.Printf("final save failed: %v", err)
	}
}

func cmdInvite(args []string) {
	fs := flag.NewFlagSet("invite", flag.ExitOnError)
	dir := fs.String("data", "", "data directory")
	expiry := fs.Duration("expiry", transport.DefaultInviteExpiry, "invite expiry duration")
	fs.Parse(args)

	d := *dir
	if d == "" {
		d = dataDir(nil)
	}
	st, err := openStore(d)
	if err != nil {
		log.Fatalf("open store: %v", err)
	}
	defer st.Close()

	h := host.NewHub(crdtkit.Options{})
	cfg := transport.DefaultConfig()
	cfg.EnableMDNS = false
	svc, err := transport.NewService(h, cfg)
	if err != nil {
		log.Fatalf("create sync service: %v", err)
	}
	defer svc.Stop()

	invite, err := transport.CreateInvite(svc.GetHost(), *expiry)
	if err != nil {
		log.Fatalf("create invite: %v", err)
	}

	if qrStr, err := invite.ToQRString(); err == nil {
		fmt.Println(qrStr)
	}
	fmt.Printf("Invite code: %s\n", invite.ToMinimalCode())
	remaining := time.Until(time.Unix(invite.ExpiresAt, 0))
	fmt.Printf("Expires in: %s\n", remaining.Round(time.Minute))
	fullCode, _ := invite.Encode()
	fmt.Printf("Full code: %s\n", fullCode)
}

func cmdPair(args []string) {
	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, "Usage: mviewd pair <full-code> [--data dir]")
		os.Exit(1)
	}
	inviteCode := args[0]

	fs := flag.NewFlagSet("pair", flag.ExitOnError)
	dir := fs.String("data", "", "data directory")
	fs.Parse(args[1:])

	d := *dir
	if d == "" {
		d = dataDir(nil)
	}
	st, err := openStore(d)
	if err != nil {
		log.Fatalf("open store: %v", err)
	}
	defer st.Close()

	h := host.NewHub(crdtkit.Options{})
	if err := h.LoadAll(st); err != nil {
		log.Fatalf("load views: %v", err)
	}

	cfg := transport.DefaultConfig()
	cfg.AllowlistPath = d
	svc, err := transport.NewService(h, cfg)
	if err != nil {
		log.Fatalf("create sync service: %v", err)
	}
	defer svc.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := svc.Start(ctx); err != nil {
		log.Fatalf("start sync service: %v", err)
	}

	invite, err := transport.ParseInvite(inviteCode)
	if err != nil {
		log.Fatalf("invalid invite: %v", err)
	}

	fmt.Printf("Connecting to peer %s...\n", invite.PeerID)
	if err := svc.ConnectPeer(invite); err != nil {
		log.Fatalf("pair failed: %v", err)
	}
	fmt.Println("Paired and added to allowlist. Start the daemon to begin syncing.")
}

type stdLogger struct{}

func (stdLogger) Printf(format string, v ...interface{}) {
	log.Printf(format, v...)
}
