package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"golang.org/x/term"
	"gopkg.in/alecthomas/kingpin.v2"

	"gitlab.lrz.de/protocol-design-sose-2022-team-0/tcpft/client"
	"gitlab.lrz.de/protocol-design-sose-2022-team-0/tcpft/config"
	"gitlab.lrz.de/protocol-design-sose-2022-team-0/tcpft/logger"
	"gitlab.lrz.de/protocol-design-sose-2022-team-0/tcpft/server"
)

var (
	serverMode = kingpin.Flag("server", "Server mode: receive files. Operate in client mode if “-s” is not specified.").Short('s').Default("false").Bool()
	configPath = kingpin.Flag("config", "Server: YAML configuration file, defaults apply when it does not exist.").Short('c').Default(config.DefaultPath).String()
	host       = kingpin.Flag("host", "Client: the server to send to (hostname or IP address).").Default("localhost").String()
	port       = kingpin.Flag("port", "Client: the server port (use 5000 as default if not given).").Short('t').Default("5000").Int()
	chunkSize  = kingpin.Flag("chunk-size", "Client: size of each payload write in bytes.").Default("4096").Int()
	rateLimit  = kingpin.Flag("rate", "Client: upload limit in bytes per second, 0 means unlimited.").Default("0").Float64()
	file       = kingpin.Arg("file", "Client: path to the file to send.").String()
)

func main() {
	kingpin.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *serverMode {
		runServer(ctx)
		return
	}
	if err := runClient(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}

func runServer(ctx context.Context) {
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		os.Exit(1)
	}
	logger.Init(cfg.Debug)

	s, err := server.Init(cfg)
	if err != nil {
		logger.Fatal("Error creating server", "error", err)
	}
	if err := s.Listen(ctx); err != nil {
		logger.Fatal("Server error", "error", err)
	}
}

func runClient(ctx context.Context) error {
	if *file == "" {
		fmt.Println("error: When running in client mode, a file to send must be provided!")
		return errors.New("no file")
	}
	if *port <= 0 || *port > 65535 {
		fmt.Printf("error: invalid port %d\n", *port)
		return errors.New("invalid port")
	}
	if _, err := os.Stat(*file); err != nil {
		fmt.Println(statMessage(*file, err))
		return err
	}

	cfg := client.DefaultConfig
	cfg.ChunkSize = *chunkSize
	cfg.Rate = *rateLimit

	name := filepath.Base(*file)
	interactive := term.IsTerminal(int(os.Stdout.Fd()))
	if interactive {
		cfg.Progress = func(sent, total int64) {
			percent := int64(100)
			if total > 0 {
				percent = sent * 100 / total
			}
			fmt.Printf("\rSending %s: %3d%% (%d/%d bytes)", name, percent, sent, total)
		}
	}

	sent, err := client.SendFile(ctx, *host, *port, *file, &cfg)
	if interactive && sent > 0 {
		fmt.Println()
	}
	if err != nil {
		fmt.Printf("Error sending file: %v\n", err)
		return err
	}
	fmt.Printf("File %s (%d bytes) sent successfully\n", name, sent)
	return nil
}

// statMessage only claims the file is missing when it is.
func statMessage(path string, err error) string {
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Sprintf("Error: File %s does not exist", path)
	}
	return fmt.Sprintf("Error: cannot access %s: %v", path, err)
}
