// Command peerchat-demo runs two peerchat peers in one process over the
// in-memory transport. Lines typed on stdin are signed and sent from the
// local peer; the remote peer prints what it verified and acknowledges.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"

	"github.com/mdp/qrterminal/v3"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/opd-ai/peerchat"
	"github.com/opd-ai/peerchat/transport"
)

type config struct {
	Label     string `yaml:"label"`
	PeerLabel string `yaml:"peer_label"`
	LogLevel  string `yaml:"log_level"`
	ShowQR    bool   `yaml:"show_qr"`
}

func defaultConfig() config {
	return config{
		Label:     "alice",
		PeerLabel: "bob",
		LogLevel:  "warn",
		ShowQR:    true,
	}
}

func loadConfig(path string) (config, error) {
	cfg := defaultConfig()
	if path == "" {
		return cfg, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func main() {
	configPath := flag.String("config", "", "path to YAML config file")
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		logrus.WithError(err).Fatal("Failed to load config")
	}

	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = logrus.WarnLevel
	}
	logrus.SetLevel(level)

	network := transport.NewNetwork()

	local, err := peerchat.New(&peerchat.Options{Label: cfg.Label}, network.Factory())
	if err != nil {
		logrus.WithError(err).Fatal("Failed to create local peer")
	}
	remote, err := peerchat.New(&peerchat.Options{Label: cfg.PeerLabel}, network.Factory())
	if err != nil {
		logrus.WithError(err).Fatal("Failed to create remote peer")
	}

	local.OnEntry(func(e peerchat.Entry) {
		if e.Sender == peerchat.SenderRemote {
			fmt.Printf("%s saw [%s] %s\n", cfg.Label, e.Verdict, e.Text)
		}
	})
	local.OnAdvisory(func(msg string) {
		fmt.Println("status:", msg)
	})
	remote.OnEntry(func(e peerchat.Entry) {
		if e.Sender == peerchat.SenderRemote {
			fmt.Printf("%s saw [%s] %s\n", cfg.PeerLabel, e.Verdict, e.Text)
			remote.Send("ack: " + e.Text)
		}
	})

	local.Start()
	remote.Start()

	fmt.Printf("%s fingerprint: %s\n", cfg.Label, local.SelfIdentifier())
	fmt.Printf("%s fingerprint: %s\n", cfg.PeerLabel, remote.SelfIdentifier())
	if cfg.ShowQR {
		qrterminal.GenerateWithConfig(local.SelfIdentifier(), qrterminal.Config{
			Level:     qrterminal.M,
			Writer:    os.Stdout,
			BlackChar: qrterminal.BLACK,
			WhiteChar: qrterminal.WHITE,
			QuietZone: 1,
		})
	}

	local.RequestConnect(remote.SelfIdentifier())

	fmt.Println("type a message and press enter (ctrl-d to quit):")
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		text := scanner.Text()
		if text == "" {
			continue
		}
		local.Send(text)
	}

	local.Disconnect()
}
