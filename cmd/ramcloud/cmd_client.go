package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/Jingle-Wang/RAMCloud/internal/client"
	"github.com/Jingle-Wang/RAMCloud/internal/keys"
)

// ClientOptions bundles the options shared by the client commands.
type ClientOptions struct {
	Addr    string
	Timeout time.Duration
}

var clientOptions ClientOptions

func dialServer() (*client.Client, error) {
	return client.Dial(clientOptions.Addr, clientOptions.Timeout)
}

var cmdPing = &cobra.Command{
	Use:   "ping",
	Short: "Check that a server answers",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := dialServer()
		if err != nil {
			return err
		}
		defer c.Close()

		start := time.Now()
		if err := c.Ping(); err != nil {
			return err
		}
		fmt.Printf("pong from %s in %v\n", clientOptions.Addr, time.Since(start))
		return nil
	},
}

var cmdRead = &cobra.Command{
	Use:   "read ID",
	Short: "Read the latest value of an object",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := dialServer()
		if err != nil {
			return err
		}
		defer c.Close()

		value, err := c.Read(keys.OfString(args[0]))
		if err != nil {
			return err
		}
		_, err = os.Stdout.Write(append(value, '\n'))
		return err
	},
}

var cmdWrite = &cobra.Command{
	Use:   "write ID VALUE",
	Short: "Write a new version of an object",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := dialServer()
		if err != nil {
			return err
		}
		defer c.Close()

		return c.Write(keys.OfString(args[0]), []byte(args[1]))
	},
}

var cmdRemove = &cobra.Command{
	Use:   "remove ID",
	Short: "Remove an object",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := dialServer()
		if err != nil {
			return err
		}
		defer c.Close()

		found, err := c.Remove(keys.OfString(args[0]))
		if err != nil {
			return err
		}
		if !found {
			fmt.Println("not found")
		}
		return nil
	},
}

func init() {
	for _, cmd := range []*cobra.Command{cmdPing, cmdRead, cmdWrite, cmdRemove} {
		f := cmd.Flags()
		f.StringVar(&clientOptions.Addr, "addr", "localhost:7040", "server address")
		f.DurationVar(&clientOptions.Timeout, "timeout", 15*time.Second, "how long to keep retrying the connection")
		cmdRoot.AddCommand(cmd)
	}
}
