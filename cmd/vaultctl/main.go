// Vaultctl command line upload client
package main

import (
	"context"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/urfave/cli"

	"github.com/vaultbox/vaultbox/pkg/uploader"
)

func main() {
	app := cli.NewApp()
	app.Name = "vaultctl"
	app.Usage = "upload files to a vaultbox server"
	app.Flags = []cli.Flag{
		cli.StringFlag{
			Name:  "server",
			Value: "http://127.0.0.1:8888",
			Usage: "upload server address",
		},
		cli.StringFlag{
			Name:   "owner",
			Usage:  "owner id the uploads belong to",
			EnvVar: "VAULTBOX_OWNER",
		},
		cli.BoolFlag{
			Name:  "debug",
			Usage: "enable debug log",
		},
	}
	app.Commands = []cli.Command{
		{
			Name:      "upload",
			Usage:     "upload one or more local files",
			ArgsUsage: "FILE [FILE...]",
			Flags: []cli.Flag{
				cli.StringFlag{
					Name:  "parent-id",
					Usage: "id of the destination folder",
				},
				cli.StringFlag{
					Name:  "dest-path",
					Usage: "destination path inside the drive",
				},
			},
			Action: uploadAction,
		},
	}
	app.Before = func(c *cli.Context) error {
		if c.GlobalBool("debug") {
			logrus.SetLevel(logrus.DebugLevel)
		}
		return nil
	}
	if err := app.Run(os.Args); err != nil {
		logrus.Fatal(err)
	}
}

func uploadAction(c *cli.Context) error {
	if c.NArg() == 0 {
		return cli.NewExitError("at least one file is required", 1)
	}
	owner := c.GlobalString("owner")
	if owner == "" {
		return cli.NewExitError("--owner is required", 1)
	}

	client := uploader.NewClient(c.GlobalString("server"), owner)
	up := uploader.New(client, consoleSink{}, uploader.DefaultOptions())

	items := make([]*uploader.Item, 0, c.NArg())
	for _, path := range c.Args() {
		stat, err := os.Stat(path)
		if err != nil {
			return cli.NewExitError(fmt.Sprintf("cannot read %s: %v", path, err), 1)
		}
		if stat.IsDir() {
			return cli.NewExitError(fmt.Sprintf("%s is a directory", path), 1)
		}
		item := uploader.NewItem(path, uploader.FileInfo{
			Name:     filepath.Base(path),
			Size:     stat.Size(),
			MimeType: mime.TypeByExtension(filepath.Ext(path)),
			ParentID: c.String("parent-id"),
			Path:     c.String("dest-path"),
		})
		up.Enqueue(item)
		items = append(items, item)
	}

	up.Run(context.Background())

	failed := 0
	for _, item := range items {
		switch item.State() {
		case uploader.StateCompleted:
			record := item.Result()
			if record != nil {
				fmt.Printf("%s uploaded, file id %s\n", item.Info.Name, record.ID)
			} else {
				fmt.Printf("%s uploaded\n", item.Info.Name)
			}
		case uploader.StateCancelled:
			fmt.Printf("%s cancelled\n", item.Info.Name)
			failed++
		default:
			fmt.Printf("%s failed: %v\n", item.Info.Name, item.Err())
			failed++
		}
	}
	if failed > 0 {
		return cli.NewExitError(fmt.Sprintf("%d of %d uploads did not complete", failed, len(items)), 1)
	}
	return nil
}

// consoleSink prints progress lines to stdout.
type consoleSink struct{}

func (consoleSink) OnProgress(ev uploader.ProgressEvent) {
	switch ev.State {
	case uploader.StateUploading, uploader.StatePaused:
		line := fmt.Sprintf("\r%s %6.2f%% (%d/%d bytes)", ev.Name, ev.Percent, ev.BytesSent, ev.TotalBytes)
		if ev.Speed > 0 {
			line += fmt.Sprintf(" %.0f B/s", ev.Speed)
		}
		if ev.Remaining != nil {
			line += fmt.Sprintf(" eta %s", ev.Remaining.Round(time.Second))
		}
		fmt.Print(line)
	case uploader.StateCompleted, uploader.StateFailed, uploader.StateCancelled:
		fmt.Printf("\r%s %s\n", ev.Name, ev.State)
	}
}
