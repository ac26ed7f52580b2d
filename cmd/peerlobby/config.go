package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/mossy-p/peerlobby/internal/models"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

type Config struct {
	relayURL   string
	name       string
	room       string
	link       string
	shareBase  string
	uiAddr     string
	iceServers string
	stunURLs   string
	verbose    bool
}

func (c *Config) validate() error {
	if c.relayURL == "" {
		return errors.New("--relay-url is required")
	}
	if strings.TrimSpace(c.name) == "" {
		return errors.New("--name is required")
	}
	return nil
}

// roomID resolves the room to join from --room or --link.
func (c *Config) roomID() (string, error) {
	if c.room != "" {
		code := models.NormalizeRoomCode(c.room)
		if !models.ValidRoomCode(code) {
			return "", fmt.Errorf("invalid room code: %q", c.room)
		}
		return code, nil
	}
	if c.link != "" {
		code, _, ok := models.ParseShareURL(c.link)
		if !ok {
			return "", fmt.Errorf("no room code in link: %q", c.link)
		}
		return code, nil
	}
	return "", errors.New("one of --room or --link is required")
}

// bindEnv lets PEERLOBBY_* variables supply any flag not set on the command line.
func bindEnv(v *viper.Viper, fs *pflag.FlagSet) {
	fs.SetNormalizeFunc(func(_ *pflag.FlagSet, name string) pflag.NormalizedName {
		return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
	})
	fs.VisitAll(func(f *pflag.Flag) {
		_ = v.BindPFlag(f.Name, f)
		_ = v.BindEnv(f.Name)
		if !f.Changed && v.IsSet(f.Name) {
			_ = fs.Set(f.Name, fmt.Sprintf("%v", v.Get(f.Name)))
		}
	})
}

func newCmd(cfg *Config) *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix("PEERLOBBY")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	cmd := &cobra.Command{
		Use:     "peerlobby",
		Short:   "Host or join a peer-to-peer game room through a signaling relay.",
		Version: releaseVersion,
	}

	pfs := cmd.PersistentFlags()
	pfs.StringVarP(&cfg.relayURL, "relay-url", "r", "http://localhost:8080", "signaling relay base URL (env: PEERLOBBY_RELAY_URL)")
	pfs.StringVarP(&cfg.name, "name", "n", "", "display name (env: PEERLOBBY_NAME)")
	pfs.StringVar(&cfg.uiAddr, "ui-addr", "127.0.0.1:7070", "address for the local UI bridge, empty to disable (env: PEERLOBBY_UI_ADDR)")
	pfs.StringVar(&cfg.iceServers, "ice-servers", "", "ICE servers as JSON (env: PEERLOBBY_ICE_SERVERS)")
	pfs.StringVar(&cfg.stunURLs, "stun-urls", "", "comma-separated STUN URLs, used when --ice-servers is empty (env: PEERLOBBY_STUN_URLS)")
	pfs.BoolVarP(&cfg.verbose, "verbose", "v", false, "display debug output (env: PEERLOBBY_VERBOSE)")
	bindEnv(v, pfs)

	host := &cobra.Command{
		Use:   "host",
		Short: "Create a room and wait for players",
		Args:  cobra.ExactArgs(0),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.validate(); err != nil {
				return err
			}
			return runHost(cmd.Context(), cfg)
		},
	}
	host.Flags().StringVar(&cfg.shareBase, "share-base", "http://localhost:5173/", "base URL for the printed join link (env: PEERLOBBY_SHARE_BASE)")
	bindEnv(v, host.Flags())

	join := &cobra.Command{
		Use:   "join",
		Short: "Join a room by code or share link",
		Args:  cobra.ExactArgs(0),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.validate(); err != nil {
				return err
			}
			roomID, err := cfg.roomID()
			if err != nil {
				return err
			}
			return runJoin(cmd.Context(), cfg, roomID)
		},
	}
	join.Flags().StringVar(&cfg.room, "room", "", "room code (env: PEERLOBBY_ROOM)")
	join.Flags().StringVar(&cfg.link, "link", "", "share link containing the room code (env: PEERLOBBY_LINK)")
	bindEnv(v, join.Flags())

	cmd.AddCommand(host, join)

	cmd.CompletionOptions.HiddenDefaultCmd = true
	cmd.SetHelpCommand(&cobra.Command{Hidden: true})
	cmd.SetVersionTemplate("peerlobby v{{.Version}}\n")

	cmd.SilenceErrors = true
	cmd.SilenceUsage = true

	return cmd
}
