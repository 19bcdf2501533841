package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jo-hoe/goseam/internal/backend/database"
	"github.com/jo-hoe/goseam/internal/continuity"
	"github.com/jo-hoe/goseam/internal/core"
)

var importExtensions = []string{".png", ".jpg", ".jpeg", ".webp", ".gif", ".bmp", ".tiff", ".svg"}

func newImportCmd(opts *rootOptions) *cobra.Command {
	var (
		owner string
		title string
	)

	cmd := &cobra.Command{
		Use:   "import <directory>",
		Short: "Import a directory of segment images as a new page",
		Long: `Creates one page whose sections are the images in <directory>, top to
bottom in file name order. The images keep their batch and position, so
they show up as originals in the section history.`,
		Example: `  goseam import ./slices --owner user-1 --title "Spring landing page"`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			segments, err := readSegments(args[0])
			if err != nil {
				return err
			}

			config, err := opts.loadConfig()
			if err != nil {
				return err
			}
			coreService, err := core.NewCoreService(cmd.Context(), config)
			if err != nil {
				return err
			}
			defer func() {
				_ = coreService.Close()
			}()

			result, err := coreService.Continuity().ImportPage(cmd.Context(), continuity.ImportRequest{
				OwnerID:    owner,
				Title:      title,
				Segments:   segments,
				SourceType: database.SourceImport,
			})
			if err != nil {
				return err
			}

			slog.Info("page imported", "page_id", result.Page.ID, "sections", len(result.Sections), "batch_id", result.BatchID)
			for _, section := range result.Sections {
				fmt.Fprintf(cmd.OutOrStdout(), "section %d\torder %d\n", section.ID, section.Order)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&owner, "owner", "", "Owner of the imported page")
	cmd.Flags().StringVar(&title, "title", "", "Title of the imported page")
	_ = cmd.MarkFlagRequired("owner")

	return cmd
}

func readSegments(dir string) ([]continuity.ImportSegment, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", dir, err)
	}

	var names []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if slices.Contains(importExtensions, strings.ToLower(filepath.Ext(entry.Name()))) {
			names = append(names, entry.Name())
		}
	}
	if len(names) == 0 {
		return nil, fmt.Errorf("no images found in %s", dir)
	}
	slices.Sort(names)

	segments := make([]continuity.ImportSegment, len(names))
	for i, name := range names {
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", name, err)
		}
		segments[i] = continuity.ImportSegment{Data: data}
	}
	return segments, nil
}
