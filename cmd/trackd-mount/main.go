// trackd-mount exposes the storage tree as a read-only FUSE mount so
// operators can browse stored documents and their version histories with
// ordinary filesystem tools.
package main

import (
	"flag"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"
)

func main() {
	storageRoot := flag.String("storage", envOrDefault("TRACKD_STORAGE_ROOT", "./storage"), "storage root directory")
	mountPoint := flag.String("mount", strings.TrimSpace(os.Getenv("TRACKD_MOUNT_POINT")), "mount point directory")
	debug := flag.Bool("debug", false, "log FUSE operations")
	flag.Parse()

	if strings.TrimSpace(*mountPoint) == "" {
		log.Fatalf("mount point is required (--mount or TRACKD_MOUNT_POINT)")
	}
	if _, err := os.Stat(*storageRoot); err != nil {
		log.Fatalf("storage root is not accessible: %v", err)
	}

	root, err := fs.NewLoopbackRoot(*storageRoot)
	if err != nil {
		log.Fatalf("failed to initialize loopback root: %v", err)
	}

	timeout := time.Second
	server, err := fs.Mount(*mountPoint, root, &fs.Options{
		AttrTimeout:  &timeout,
		EntryTimeout: &timeout,
		MountOptions: fuse.MountOptions{
			Name:   "trackd",
			FsName: *storageRoot,
			Debug:  *debug,
			// The storage tree is owned by the tracker; expose it read-only.
			Options: []string{"ro"},
		},
	})
	if err != nil {
		log.Fatalf("mount failed: %v", err)
	}

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-signals
		if err := server.Unmount(); err != nil {
			log.Printf("unmount failed: %v", err)
		}
	}()

	log.Printf("storage %s mounted read-only at %s", *storageRoot, *mountPoint)
	server.Wait()
}

func envOrDefault(name, fallback string) string {
	value := strings.TrimSpace(os.Getenv(name))
	if value == "" {
		return fallback
	}
	return value
}
