package main

import (
	"fmt"
	"io"
	"log"
	"os"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/tverdal/gofat32/blockdev"
	"github.com/tverdal/gofat32/diskutil"
	"github.com/tverdal/gofat32/errors"
	"github.com/tverdal/gofat32/fat32"
)

// asError adapts a *errors.DriverError to the standard error interface,
// returning a true nil (not a non-nil interface wrapping a nil pointer)
// when err is nil.
func asError(err *errors.DriverError) error {
	if err == nil {
		return nil
	}
	return err
}

func main() {
	app := cli.App{
		Usage: "Inspect and repair FAT32 disk images",
		Commands: []*cli.Command{
			{
				Name:      "check",
				Usage:     "Mount an image, run the validator, and report any corrections made",
				ArgsUsage: "IMAGE",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "dry-run",
						Usage: "preview repairs against an in-memory copy; never write to the image file",
					},
				},
				Action: runCheck,
			},
			{
				Name:      "info",
				Usage:     "Print a volume's geometry, free space, and matched size profile",
				ArgsUsage: "IMAGE",
				Action:    runInfo,
			},
			{
				Name:      "ls",
				Usage:     "List the contents of a directory on the volume",
				ArgsUsage: "IMAGE PATH",
				Action:    runLs,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatalf("fat32check: %s", err.Error())
	}
}

func openImage(path string) (*os.File, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	return f, nil
}

// dryRunDevice loads path entirely into memory and wraps it in a
// diskutil.MemDevice, so a --dry-run check can mount, repair, and unmount
// against a scratch copy without ever writing to the real image file.
func dryRunDevice(path string) (blockdev.Device, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return diskutil.NewMemDeviceFromImage(data), nil
}

func runCheck(c *cli.Context) error {
	path := c.Args().First()
	if path == "" {
		return fmt.Errorf("usage: fat32check check IMAGE")
	}

	var dev blockdev.Device
	if c.Bool("dry-run") {
		memDev, err := dryRunDevice(path)
		if err != nil {
			return err
		}
		dev = memDev
		fmt.Println("dry run: repairs below are previewed only, the image file is untouched")
	} else {
		f, err := openImage(path)
		if err != nil {
			return err
		}
		defer f.Close()
		dev = blockdev.NewFileDevice(f)
	}

	sb, _, warnings, mountErr := fat32.Mount(dev, log.Default())
	if mountErr != nil {
		return fmt.Errorf("mount failed: %s", mountErr.Error())
	}

	if warnings == nil {
		fmt.Println("clean: no corrections were necessary")
	} else {
		fmt.Printf("%d issue(s) found and repaired:\n", len(warnings.Errors))
		for _, w := range warnings.Errors {
			fmt.Printf("  - %s\n", w.Error())
		}
	}

	if unmountErr := fat32.Unmount(sb); unmountErr != nil {
		return fmt.Errorf("unmount failed: %s", unmountErr.Error())
	}

	if sb.HasErrors {
		return cli.Exit("volume had corruption (see the report above)", 1)
	}
	return nil
}

func runInfo(c *cli.Context) error {
	path := c.Args().First()
	if path == "" {
		return fmt.Errorf("usage: fat32check info IMAGE")
	}

	f, err := openImage(path)
	if err != nil {
		return err
	}
	defer f.Close()

	dev := blockdev.NewFileDevice(f)
	sb, _, _, mountErr := fat32.Mount(dev, log.Default())
	if mountErr != nil {
		return fmt.Errorf("mount failed: %s", mountErr.Error())
	}

	geom := sb.Geometry
	fmt.Printf("total sectors:        %d\n", geom.TotalSectors)
	fmt.Printf("bytes per sector:     %d\n", geom.BytesPerSector)
	fmt.Printf("sectors per cluster:  %d\n", geom.SectorsPerCluster)
	fmt.Printf("cluster size:         %d bytes\n", geom.ClusterSize)
	fmt.Printf("total clusters:       %d\n", geom.TotalClusters)
	fmt.Printf("FAT copies:           %d\n", geom.NumFATs)
	fmt.Printf("root cluster:         %d\n", geom.RootCluster)

	free, countErr := sb.Cluster.CountFreeClusters()
	if countErr != nil {
		return fmt.Errorf("counting free clusters: %s", countErr.Error())
	}
	fmt.Printf("free clusters:        %d\n", free)

	if sb.Profile != nil {
		fmt.Printf("matched profile:      %s (%s)\n", sb.Profile.Slug, sb.Profile.Label)
		if sb.Profile.SectorsPerCluster != geom.SectorsPerCluster {
			fmt.Printf("warning: sectors-per-cluster is %d, Microsoft recommends %d for this size\n",
				geom.SectorsPerCluster, sb.Profile.SectorsPerCluster)
		}
	} else {
		fmt.Println("matched profile:      (none)")
	}

	return asError(fat32.Unmount(sb))
}

func runLs(c *cli.Context) error {
	if c.Args().Len() < 2 {
		return fmt.Errorf("usage: fat32check ls IMAGE PATH")
	}
	path := c.Args().Get(0)
	target := c.Args().Get(1)

	f, err := openImage(path)
	if err != nil {
		return err
	}
	defer f.Close()

	dev := blockdev.NewFileDevice(f)
	sb, root, _, mountErr := fat32.Mount(dev, log.Default())
	if mountErr != nil {
		return fmt.Errorf("mount failed: %s", mountErr.Error())
	}

	node, resolveErr := resolvePath(root, target)
	if resolveErr != nil {
		_ = fat32.Unmount(sb)
		return fmt.Errorf("resolving %s: %s", target, resolveErr.Error())
	}
	if !node.IsDirectory() {
		_ = fat32.Unmount(sb)
		return fmt.Errorf("%s is not a directory", target)
	}

	entries, readErr := node.Readdir(0, 0)
	if readErr != nil {
		_ = fat32.Unmount(sb)
		return fmt.Errorf("reading directory: %s", readErr.Error())
	}

	for _, e := range entries {
		kind := "-"
		if e.IsDirectory() {
			kind = "d"
		}
		fmt.Printf("%s %10d  %s\n", kind, e.Size, e.DisplayName)
	}

	return asError(fat32.Unmount(sb))
}

// resolvePath walks path's "/"-separated components from root, one Lookup
// per component.
func resolvePath(root *fat32.Node, path string) (*fat32.Node, error) {
	cur := root
	for _, part := range strings.Split(strings.Trim(path, "/"), "/") {
		if part == "" {
			continue
		}
		next, err := cur.Lookup(part)
		if err != nil {
			return nil, err
		}
		cur = next
	}
	return cur, nil
}
