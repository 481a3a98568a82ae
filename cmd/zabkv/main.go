// Command zabkv is a demo replicated key-value store built on the zab
// package: every node runs a Participant, a grpctransport.Transport, and a
// StateMachine, and a line-oriented stdin prompt drives
// SET/UNSET/GET/KEYS/LEADER against the local node. GET and KEYS read the
// local state machine; SET and UNSET succeed only while the local node
// leads.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/kzab/zab"
	"github.com/kzab/zab/grpctransport"
	"go.uber.org/zap"
)

func main() {
	var (
		id      = flag.String("id", "", "this server's id (required)")
		listen  = flag.String("listen", "127.0.0.1:0", "address to bind the gRPC transport to")
		peers   = flag.String("peers", "", "comma-separated id=endpoint pairs for the full ensemble, including self")
		dataDir = flag.String("data", "", "log directory (required)")
	)
	flag.Parse()

	if *id == "" || *dataDir == "" {
		fmt.Fprintln(os.Stderr, "zabkv: -id and -data are required")
		os.Exit(2)
	}

	logger := zap.Must(zap.NewDevelopment()).Sugar()
	defer logger.Sync()

	peerList, err := parsePeers(*peers)
	if err != nil {
		logger.Fatalw("invalid -peers", "error", err)
	}

	trans, err := grpctransport.New(*id, *listen, logger)
	if err != nil {
		logger.Fatalw("failed to bind transport", "error", err)
	}
	logger.Infow("bound transport", "endpoint", trans.Endpoint())

	sm := NewStateMachine(logger)
	cfg := zab.Config{
		ServerId: *id,
		Peers:    peerList,
		LogDir:   *dataDir,
		LogLevel: zab.LogLevelInfo,
	}
	participant, err := zab.NewParticipant(cfg, trans, staticOracle{}, sm)
	if err != nil {
		logger.Fatalw("failed to construct participant", "error", err)
	}

	done := make(chan error, 1)
	go func() { done <- participant.Serve() }()

	sigCh := terminalSignalCh()
	go repl(participant, sm, logger)

	select {
	case err := <-done:
		if err != nil {
			logger.Errorw("participant stopped", "error", err)
		}
	case sig := <-sigCh:
		logger.Infow("shutting down", "signal", sig.String())
		participant.Shutdown(nil)
		<-done
	}
}

func parsePeers(spec string) ([]zab.Peer, error) {
	var peers []zab.Peer
	for _, entry := range strings.Split(spec, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		parts := strings.SplitN(entry, "=", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("zabkv: malformed peer entry %q, want id=endpoint", entry)
		}
		peers = append(peers, zab.Peer{Id: parts[0], Endpoint: parts[1]})
	}
	return peers, nil
}

func repl(p *zab.Participant, sm *StateMachine, logger *zap.SugaredLogger) {
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		switch strings.ToUpper(fields[0]) {
		case "SET":
			if len(fields) != 3 {
				fmt.Println("usage: SET <key> <value>")
				break
			}
			body := EncodeCommand(Command{Type: CommandSet, Key: fields[1], Value: []byte(fields[2])})
			if _, err := p.Send(ctx, body); err != nil {
				fmt.Println("error:", err)
			} else {
				fmt.Println("ok")
			}
		case "UNSET":
			if len(fields) != 2 {
				fmt.Println("usage: UNSET <key>")
				break
			}
			body := EncodeCommand(Command{Type: CommandUnset, Key: fields[1]})
			if _, err := p.Send(ctx, body); err != nil {
				fmt.Println("error:", err)
			} else {
				fmt.Println("ok")
			}
		case "GET":
			if len(fields) != 2 {
				fmt.Println("usage: GET <key>")
				break
			}
			if v, ok := sm.Value(fields[1]); ok {
				fmt.Println(string(v))
			} else {
				fmt.Println("(not found)")
			}
		case "KEYS":
			fmt.Println(strings.Join(sm.Keys(), " "))
		case "LEADER":
			fmt.Println(p.Leader().Id)
		default:
			fmt.Println("commands: SET <k> <v> | UNSET <k> | GET <k> | KEYS | LEADER")
		}
		cancel()
	}
}

func terminalSignalCh() <-chan os.Signal {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	return ch
}
