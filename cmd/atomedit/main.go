// Command atomedit runs one peer of the AtomEdit collaborative text
// editor. It takes a single argument: the peer's name.
package main

import (
	"fmt"
	"os"

	"github.com/Narendra20078/AtomEdit/internal/bootstrap"
	"github.com/Narendra20078/AtomEdit/internal/config"
	"github.com/Narendra20078/AtomEdit/internal/engine"
	"github.com/Narendra20078/AtomEdit/internal/logging"
	"github.com/Narendra20078/AtomEdit/internal/mailbox"
	"github.com/Narendra20078/AtomEdit/internal/registry"
	"github.com/Narendra20078/AtomEdit/internal/types"
	"github.com/Narendra20078/AtomEdit/internal/watcher"
)

func main() {
	if len(os.Args) != 2 {
		fmt.Fprintf(os.Stderr, "Usage: %s <peer-name>\n", os.Args[0])
		os.Exit(1)
	}
	name := os.Args[1]

	if err := run(name); err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", name, err)
		os.Exit(1)
	}
}

func run(name string) error {
	log := logging.New(name)
	cfg, err := config.Load(os.Getenv("ATOMEDIT_CONFIG"))
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	localFile := name + "_doc.txt"

	mbox, err := mailbox.Listen(fmt.Sprintf("127.0.0.1:%d", cfg.MailboxPort), cfg.MailboxCapacity, log)
	if err != nil {
		return fmt.Errorf("mailbox init: %w", err)
	}
	defer mbox.Close()

	self := types.PeerInfo{Name: name, Addr: mbox.Addr()}

	reg, err := registry.Open(cfg.RegistryPath, self, cfg.MaxPeers)
	if err != nil {
		return fmt.Errorf("registry init: %w", err)
	}
	defer reg.Close()

	outcome, err := reg.Join()
	if err != nil {
		return fmt.Errorf("join registry: %w", err)
	}
	if outcome == types.JoinFull {
		return fmt.Errorf("registry full (max %d peers)", cfg.MaxPeers)
	}
	log.WithField("outcome", outcome).Info("joined registry")
	defer reg.Leave()

	if err := bootstrap.EnsureMasterFile(cfg.MasterFile); err != nil {
		return fmt.Errorf("seed master file: %w", err)
	}
	content, err := bootstrap.EnsureLocalFile(cfg.MasterFile, localFile)
	if err != nil {
		return fmt.Errorf("init local file: %w", err)
	}

	sender := mailbox.NewSender(self, cfg.SendRetries, cfg.SendRetryBase, log)

	stop := make(chan struct{})

	eng := engine.New(self, localFile, cfg, log, reg, mbox, sender, nil)
	watch := watcher.New(localFile, cfg.PollInterval, eng.Stamp, eng.OnLocalOps, log)
	eng.SetWatcher(watch)
	watch.Seed(content)

	go watch.Run(stop)
	go eng.ListenerLoop(stop)
	go eng.HeartbeatLoop(stop)
	eng.Run(stop)

	return nil
}
