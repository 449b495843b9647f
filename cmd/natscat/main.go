// Command natscat is a small command-line client (publish/subscribe/
// request) built on top of the nats package, in the spirit of the
// NATS ecosystem's nats-pub/nats-sub tools.
package main

import (
	"bufio"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/sty-holdings/dart-to-nats"
	"github.com/sty-holdings/dart-to-nats/internal/natslog"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix("NATSCAT")
	v.AutomaticEnv()
	v.SetDefault("url", "nats://127.0.0.1:4222")
	v.SetDefault("log_level", "info")

	root := &cobra.Command{
		Use:   "natscat",
		Short: "Publish, subscribe, and request against a NATS-style server",
	}

	root.PersistentFlags().String("url", "", "server URL (nats/tls/ws/wss), env NATSCAT_URL")
	root.PersistentFlags().String("creds-seed", "", "nkey seed for handshake authentication, env NATSCAT_CREDS_SEED")
	root.PersistentFlags().String("log-level", "", "debug, info, warn, or error, env NATSCAT_LOG_LEVEL")
	_ = v.BindPFlag("url", root.PersistentFlags().Lookup("url"))
	_ = v.BindPFlag("creds_seed", root.PersistentFlags().Lookup("creds-seed"))
	_ = v.BindPFlag("log_level", root.PersistentFlags().Lookup("log-level"))

	root.AddCommand(newPubCmd(v), newSubCmd(v), newRequestCmd(v))
	return root
}

func connectFromViper(v *viper.Viper) (*nats.Conn, error) {
	logger := natslog.New(v.GetString("log_level"))
	opts := []nats.Option{nats.WithLogger(logger), nats.WithName("natscat")}
	if seed := v.GetString("creds_seed"); seed != "" {
		opts = append(opts, nats.WithNKeySeed(seed))
	}
	return nats.Connect(v.GetString("url"), opts...)
}

func newPubCmd(v *viper.Viper) *cobra.Command {
	var reply string
	cmd := &cobra.Command{
		Use:   "pub <subject> <data>",
		Short: "Publish a single message",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			nc, err := connectFromViper(v)
			if err != nil {
				return err
			}
			defer nc.Close()

			if reply != "" {
				return nc.PublishRequest(args[0], reply, []byte(args[1]))
			}
			return nc.Publish(args[0], []byte(args[1]))
		},
	}
	cmd.Flags().StringVar(&reply, "reply", "", "reply-to subject")
	return cmd
}

func newSubCmd(v *viper.Viper) *cobra.Command {
	var queue string
	cmd := &cobra.Command{
		Use:   "sub <subject>",
		Short: "Subscribe to a subject and print received messages",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			nc, err := connectFromViper(v)
			if err != nil {
				return err
			}
			defer nc.Close()

			var sub *nats.Subscription
			if queue != "" {
				sub, err = nc.QueueSubscribe(args[0], queue)
			} else {
				sub, err = nc.Subscribe(args[0])
			}
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			w := bufio.NewWriter(os.Stdout)
			defer w.Flush()

			i := 0
			for {
				select {
				case msg, ok := <-sub.Msgs():
					if !ok {
						return nil
					}
					i++
					fmt.Fprintf(w, "[#%d] %s: %s\n", i, msg.Subject, msg.Data)
					w.Flush()
				case <-ctx.Done():
					return nil
				}
			}
		},
	}
	cmd.Flags().StringVar(&queue, "queue", "", "queue group name")
	return cmd
}

func newRequestCmd(v *viper.Viper) *cobra.Command {
	var timeout time.Duration
	cmd := &cobra.Command{
		Use:   "request <subject> <data>",
		Short: "Send a request and print the reply",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			nc, err := connectFromViper(v)
			if err != nil {
				return err
			}
			defer nc.Close()

			msg, err := nc.Request(args[0], []byte(args[1]), timeout)
			if err != nil {
				return err
			}
			fmt.Println(string(msg.Data))
			return nil
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", 2*time.Second, "request timeout")
	return cmd
}
