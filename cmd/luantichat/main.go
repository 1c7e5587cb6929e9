// luantichat connects to a Luanti server as a headless player, prints
// the roster and incoming chat, and optionally says one line before
// leaving. Connection settings come from flags or a TOML config file.
package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/golang/glog"

	"badc0de.net/pkg/go-luanti/client"
)

type config struct {
	Server     string `toml:"server"`
	Port       int    `toml:"port"`
	Playername string `toml:"playername"`
	Password   string `toml:"password"`
}

var (
	configPath = flag.String("config", "", "path to a TOML config file; flags override it")
	server     = flag.String("server", "127.0.0.1", "server host")
	port       = flag.Int("port", client.DefaultPort, "server port")
	playername = flag.String("playername", "", "player name")
	password   = flag.String("password", "", "password")
	register   = flag.Bool("register", false, "register a new player instead of logging in")
	say        = flag.String("say", "", "chat line to send once joined")
	stay       = flag.Duration("stay", 10*time.Second, "how long to stay connected")
)

func loadConfig() (*config, error) {
	cfg := &config{
		Server: *server,
		Port:   *port,
	}
	if *configPath != "" {
		if _, err := toml.DecodeFile(*configPath, cfg); err != nil {
			return nil, fmt.Errorf("reading config %q: %s", *configPath, err)
		}
	}
	// Explicit flags win over the file.
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "server":
			cfg.Server = *server
		case "port":
			cfg.Port = *port
		case "playername":
			cfg.Playername = *playername
		case "password":
			cfg.Password = *password
		}
	})
	if cfg.Playername == "" {
		return nil, fmt.Errorf("no playername given (flag -playername or config file)")
	}
	return cfg, nil
}

func main() {
	flag.Parse()

	cfg, err := loadConfig()
	if err != nil {
		glog.Exitf("config: %v", err)
	}

	c := client.New(cfg.Server, cfg.Port, cfg.Playername, cfg.Password)
	c.RegisterChatMessageHandler(func(message string) bool {
		fmt.Printf("chat: %s\n", message)
		return false
	})

	if err := c.Connect(*register); err != nil {
		if ce, ok := err.(*client.ConnError); ok && ce.Code >= 0 {
			glog.Exitf("server denied access (code %d): %v", ce.Code, ce)
		}
		glog.Exitf("connect: %v", err)
	}
	defer c.Disconnect()

	fmt.Printf("joined %s:%d as %s\n", cfg.Server, cfg.Port, cfg.Playername)
	fmt.Printf("players online: %v\n", c.State().Players())

	if *say != "" {
		if !c.SendChatMessage(*say) {
			glog.Error("chat message was not sent")
		}
	}

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)
	select {
	case <-time.After(*stay):
	case <-interrupt:
		glog.Info("interrupted")
	}

	sent, received := c.State().Stats()
	fmt.Printf("leaving; %d packets sent, %d received\n", sent, received)
}
