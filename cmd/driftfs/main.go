package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"

	"github.com/driftfs/driftfs/pkg/common"
	"github.com/driftfs/driftfs/pkg/controlplane"
	"github.com/driftfs/driftfs/pkg/remote"
	"github.com/driftfs/driftfs/pkg/types"
)

const usage = `usage: driftfs <command> <address> [arg]

commands:
  stat <address>           describe a file or directory
  ls <address>             list a directory
  cat <address>            print a file's text
  write <address> <text>   overwrite a file with text
  mkdir <address>          create a directory
  rmdir <address>          remove a directory
  rm <address>             delete a file
  cp <address> <dest>      copy a file
  mv <address> <dest>      move a file
`

func main() {
	flag.Parse()
	args := flag.Args()
	if len(args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	cm, err := common.NewConfigManager[types.AppConfig]()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	config := cm.GetConfig()
	common.InitLogger(config.DebugMode, config.PrettyLogs)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, config, args); err != nil {
		log.Fatal().Err(err).Msg("command failed")
	}
}

func run(ctx context.Context, config types.AppConfig, args []string) error {
	session, err := controlplane.Start(ctx, config)
	if err != nil {
		return err
	}
	defer session.Close(context.WithoutCancel(ctx))

	client := remote.NewClient(session, config.Mount)
	path, err := client.Path(args[1])
	if err != nil {
		return err
	}

	switch cmd := args[0]; cmd {
	case "stat":
		item, err := path.Stat(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("%s\tdir=%v\tsize=%d\tmodtime=%s\n", path, item.IsDir, item.Size, item.ModTime)
	case "ls":
		children, err := path.List(ctx)
		if err != nil {
			return err
		}
		for _, child := range children {
			fmt.Println(child)
		}
	case "cat":
		text, err := path.ReadText(ctx)
		if err != nil {
			return err
		}
		fmt.Print(text)
	case "write":
		if len(args) < 3 {
			return errors.New("write needs text to write")
		}
		n, err := path.WriteText(ctx, args[2])
		if err != nil {
			return err
		}
		log.Info().Int("bytes", n).Stringer("path", path).Msg("wrote file")
	case "mkdir":
		return path.Mkdir(ctx, remote.MkdirOptions{Parents: true, ExistOK: true})
	case "rmdir":
		return path.Rmdir(ctx)
	case "rm":
		return path.Unlink(ctx)
	case "cp", "mv":
		if len(args) < 3 {
			return errors.New(cmd + " needs a destination")
		}
		if cmd == "cp" {
			return path.CopyTo(ctx, remote.Spec(args[2]))
		}
		return path.MoveTo(ctx, remote.Spec(args[2]))
	default:
		return fmt.Errorf("unknown command %q", cmd)
	}
	return nil
}
