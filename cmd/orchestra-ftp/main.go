// Command orchestra-ftp runs single file operations against an FTP, FTPS or
// SFTP server.
//
//	orchestra-ftp --host sftp://ftp.example.com --user deploy ls /var/www
//	FTP_PASSWORD=secret orchestra-ftp --config deploy.yaml put build/index.html /var/www/index.html
package main

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"

	"github.com/dustin/go-humanize"
	"github.com/orchestral/support/ftp"
	"github.com/urfave/cli/v3"
)

func main() {
	if err := newApp(os.Stdout, os.Stderr).Run(context.Background(), os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newApp(stdout, stderr io.Writer) *cli.Command {
	return &cli.Command{
		Name:  "orchestra-ftp",
		Usage: "transfer files over FTP, FTPS and SFTP",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Usage: "YAML file with host, user, password, timeout, active, mode and rateLimit"},
			&cli.StringFlag{Name: "host", Usage: "server URI, e.g. sftp://ftp.example.com:21", Sources: cli.EnvVars("FTP_HOST")},
			&cli.StringFlag{Name: "user", Sources: cli.EnvVars("FTP_USER")},
			&cli.StringFlag{Name: "password", Sources: cli.EnvVars("FTP_PASSWORD")},
			&cli.DurationFlag{Name: "timeout", Usage: "connect and command timeout (default 90s)"},
			&cli.BoolFlag{Name: "active", Usage: "use active (PORT) data connections"},
			&cli.StringFlag{Name: "rate-limit", Usage: "maximum transfer rate, e.g. 512KB"},
			&cli.BoolFlag{Name: "insecure", Usage: "skip TLS certificate verification"},
			&cli.BoolFlag{Name: "verbose", Usage: "log protocol traffic to stderr"},
		},
		Commands: []*cli.Command{
			{
				Name:      "ls",
				Usage:     "list a directory",
				ArgsUsage: "[dir]",
				Action: withClient(stderr, 0, 1, func(c *ftp.Client, args cli.Args) error {
					names, err := c.List(args.First())
					if err != nil {
						return err
					}
					for _, name := range names {
						fmt.Fprintln(stdout, name)
					}
					return nil
				}),
			},
			{
				Name:      "get",
				Usage:     "download a file",
				ArgsUsage: "remote local",
				Action: withClient(stderr, 2, 2, func(c *ftp.Client, args cli.Args) error {
					if err := c.Get(args.Get(0), args.Get(1)); err != nil {
						return err
					}
					return report(stdout, "downloaded", args.Get(0), args.Get(1))
				}),
			},
			{
				Name:      "put",
				Usage:     "upload a file",
				ArgsUsage: "local remote",
				Action: withClient(stderr, 2, 2, func(c *ftp.Client, args cli.Args) error {
					if err := c.Put(args.Get(1), args.Get(0)); err != nil {
						return err
					}
					return report(stdout, "uploaded", args.Get(1), args.Get(0))
				}),
			},
			{
				Name:      "mv",
				Usage:     "rename a file",
				ArgsUsage: "from to",
				Action: withClient(stderr, 2, 2, func(c *ftp.Client, args cli.Args) error {
					return c.Rename(args.Get(0), args.Get(1))
				}),
			},
			{
				Name:      "rm",
				Usage:     "delete a file",
				ArgsUsage: "path",
				Action: withClient(stderr, 1, 1, func(c *ftp.Client, args cli.Args) error {
					return c.Delete(args.First())
				}),
			},
			{
				Name:      "chmod",
				Usage:     "change permissions",
				ArgsUsage: "mode path",
				Action: withClient(stderr, 2, 2, func(c *ftp.Client, args cli.Args) error {
					mode, err := parseMode(args.Get(0))
					if err != nil {
						return err
					}
					return c.Chmod(args.Get(1), mode)
				}),
			},
			{
				Name:      "mkdir",
				Usage:     "create a directory",
				ArgsUsage: "dir",
				Action: withClient(stderr, 1, 1, func(c *ftp.Client, args cli.Args) error {
					return c.MakeDir(args.First())
				}),
			},
			{
				Name:      "rmdir",
				Usage:     "remove a directory",
				ArgsUsage: "dir",
				Action: withClient(stderr, 1, 1, func(c *ftp.Client, args cli.Args) error {
					return c.RemoveDir(args.First())
				}),
			},
			{
				Name:  "pwd",
				Usage: "print the working directory",
				Action: withClient(stderr, 0, 0, func(c *ftp.Client, _ cli.Args) error {
					dir, err := c.CurrentDir()
					if err != nil {
						return err
					}
					fmt.Fprintln(stdout, dir)
					return nil
				}),
			},
		},
	}
}

// withClient connects, runs fn and closes the connection.
func withClient(stderr io.Writer, minArgs, maxArgs int, fn func(*ftp.Client, cli.Args) error) cli.ActionFunc {
	return func(ctx context.Context, cmd *cli.Command) error {
		if n := cmd.Args().Len(); n < minArgs || n > maxArgs {
			return fmt.Errorf("%s: expected %s", cmd.Name, cmd.ArgsUsage)
		}

		c, err := newClient(cmd, stderr)
		if err != nil {
			return err
		}
		if err := c.Connect(); err != nil {
			return err
		}

		runErr := fn(c, cmd.Args())
		if err := c.Close(); err != nil && runErr == nil {
			return err
		}
		return runErr
	}
}

func newClient(cmd *cli.Command, stderr io.Writer) (*ftp.Client, error) {
	var cfg ftp.Config
	if path := cmd.String("config"); path != "" {
		loaded, err := ftp.LoadConfig(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	if cmd.IsSet("host") {
		cfg.Host = cmd.String("host")
	}
	if cmd.IsSet("user") {
		cfg.User = cmd.String("user")
	}
	if cmd.IsSet("password") {
		cfg.Password = cmd.String("password")
	}
	if cmd.IsSet("timeout") {
		cfg.Timeout = cmd.Duration("timeout")
	}
	if cmd.IsSet("active") {
		cfg.Active = cmd.Bool("active")
	}
	if limit := cmd.String("rate-limit"); limit != "" {
		bps, err := humanize.ParseBytes(limit)
		if err != nil {
			return nil, fmt.Errorf("invalid rate limit %q: %w", limit, err)
		}
		cfg.RateLimit = int64(bps)
	}
	if cfg.Host == "" {
		return nil, fmt.Errorf("no host given: use --host, FTP_HOST or --config")
	}

	var opts []ftp.Option
	if cmd.Bool("verbose") {
		opts = append(opts, ftp.WithLogger(slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))))
	}
	if cmd.Bool("insecure") {
		opts = append(opts, ftp.WithTLSConfig(&tls.Config{InsecureSkipVerify: true}))
	}
	return ftp.New(cfg, opts...)
}

// parseMode converts a chmod style octal mode such as 4755 into an
// os.FileMode.
func parseMode(s string) (os.FileMode, error) {
	n, err := strconv.ParseUint(s, 8, 32)
	if err != nil || n > 0o7777 {
		return 0, fmt.Errorf("invalid mode %q", s)
	}
	mode := os.FileMode(n & 0o777)
	if n&0o4000 != 0 {
		mode |= os.ModeSetuid
	}
	if n&0o2000 != 0 {
		mode |= os.ModeSetgid
	}
	if n&0o1000 != 0 {
		mode |= os.ModeSticky
	}
	return mode, nil
}

func report(w io.Writer, verb, remote, local string) error {
	fi, err := os.Stat(local)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "%s %s (%s)\n", verb, remote, humanize.Bytes(uint64(fi.Size())))
	return err
}
