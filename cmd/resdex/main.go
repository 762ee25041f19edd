package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"resdex/internal/app"
	"resdex/internal/config"
	"resdex/internal/engine"
	"resdex/internal/resource"

	"github.com/spf13/cobra"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}

// newApp reads the config and creates an App. The caller must defer app.Close().
// operation identifies the CLI command being run (e.g. "scan", "import").
func newApp(operation string) (*app.App, error) {
	defaults, err := app.GetDefaults()
	if err != nil {
		return nil, fmt.Errorf("getting defaults: %w", err)
	}

	cfg, err := config.ReadFromFile(defaults["config_path"])
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	a, err := app.NewApp(cfg, operation)
	if err != nil {
		return nil, fmt.Errorf("initializing app: %w", err)
	}

	return a, nil
}

func printResources(rs []*resource.Resource) {
	if len(rs) == 0 {
		fmt.Println("No resources found.")
		return
	}
	for _, r := range rs {
		if r == nil {
			continue
		}
		path := r.StoredPath
		if path == "" {
			path = r.Path
		}
		fmt.Printf("%s  %-13s  %s  %s\n", shortHash(r.Hash), r.Domain, r.Name, path)
	}
}

func shortHash(h string) string {
	if len(h) > 12 {
		return h[:12]
	}
	return h
}

func printResource(r *resource.Resource) {
	fmt.Printf("Hash:     %s\n", r.Hash)
	fmt.Printf("Domain:   %s\n", r.Domain)
	fmt.Printf("Name:     %s\n", r.Name)
	fmt.Printf("Path:     %s\n", r.Path)
	fmt.Printf("Size:     %d\n", r.Size)
	fmt.Printf("Modified: %s\n", r.Mtime.Format("2006-01-02 15:04:05"))
	for _, v := range r.Metadata.Variants {
		fmt.Printf("Type:     %s\n", v.Type())
	}
	for _, t := range r.Tags {
		fmt.Printf("Tag:      %s\n", t)
	}
	for _, u := range r.URIs {
		fmt.Printf("URI:      %s\n", u)
	}
	for _, i := range r.Icons {
		fmt.Printf("Icon:     %s\n", i)
	}
}

func parseDomain(raw string) (resource.Domain, error) {
	if raw == "" {
		return "", nil
	}
	d, ok := resource.ParseDomain(raw)
	if !ok {
		return "", fmt.Errorf("unknown domain %q", raw)
	}
	return d, nil
}

var rootCmd = &cobra.Command{
	Use:          "resdex",
	Short:        "Minecraft launcher resource index",
	SilenceUsage: true,
}

// config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init [ROOT]",
	Short: "Initialize configuration",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		root := ""
		if len(args) > 0 {
			root = args[0]
		} else {
			home, err := os.UserHomeDir()
			if err != nil {
				return fmt.Errorf("cannot determine home directory: %w", err)
			}
			root = filepath.Join(home, ".minecraft")
		}
		root, err = filepath.Abs(root)
		if err != nil {
			return fmt.Errorf("resolving root: %w", err)
		}

		cfg := config.NewConfig(root, defaults["base_dir"])
		if err := config.Init(defaults["config_path"], cfg); err != nil {
			return fmt.Errorf("failed to initialize config: %w", err)
		}

		fmt.Printf("Configuration initialized at %s\n", defaults["config_path"])
		fmt.Printf("Root Dir: %s\n", root)
		fmt.Printf("Base Dir: %s\n", defaults["base_dir"])
		return nil
	},
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "View configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		cfg, err := config.ReadFromFile(defaults["config_path"])
		if err != nil {
			return fmt.Errorf("failed to read config: %w", err)
		}
		config.ApplyDefaults(cfg)

		fmt.Printf("Configuration from %s:\n\n", defaults["config_path"])
		fmt.Printf("Root Dir:  %s\n", cfg.RootDir)
		fmt.Printf("Log Dir:   %s\n", cfg.LogDir)
		fmt.Printf("Database:  %s %s\n", cfg.Database.Type, cfg.Database.DataDir)
		fmt.Printf("Images:    %s %s\n", cfg.Images.Type, cfg.Images.Root)
		fmt.Printf("Domains:   %v\n", cfg.Watcher.Domains)
		for _, s := range cfg.Secondary {
			fmt.Printf("Secondary: %s -> %s\n", s.Dir, s.Domain)
		}
		if cfg.Export.Type != "" {
			fmt.Printf("Export:    %s\n", cfg.Export.Type)
		}
		return nil
	},
}

var scanCmd = &cobra.Command{
	Use:   "scan [DOMAIN...]",
	Short: "Revalidate domain directories once",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("scan")
		if err != nil {
			return err
		}
		defer a.Close()

		domains, err := a.ParseDomains(args)
		if err != nil {
			return err
		}
		stats, err := a.Scan(cmd.Context(), domains)
		if err != nil {
			return fmt.Errorf("scan failed: %w", err)
		}

		fmt.Printf("Indexed %d, unchanged %d, removed %d, skipped %d\n",
			stats.Queued, stats.Emitted, stats.Removed, stats.Skipped)
		return nil
	},
}

var watchCmd = &cobra.Command{
	Use:   "watch [DOMAIN...]",
	Short: "Watch domain directories until interrupted",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("watch")
		if err != nil {
			return err
		}
		defer a.Close()

		domains, err := a.ParseDomains(args)
		if err != nil {
			return err
		}
		fmt.Printf("Watching %v (Ctrl-C to stop)\n", domains)
		return a.Watch(cmd.Context(), domains)
	},
}

var listCmd = &cobra.Command{
	Use:   "list DOMAIN",
	Short: "List resources in a domain",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		offset, _ := cmd.Flags().GetInt("offset")
		limit, _ := cmd.Flags().GetInt("limit")
		keyword, _ := cmd.Flags().GetString("keyword")

		domain, err := parseDomain(args[0])
		if err != nil {
			return err
		}

		a, err := newApp("list")
		if err != nil {
			return err
		}
		defer a.Close()

		c := engine.Command{Kind: engine.CmdGetResources, Domain: domain, Page: resource.Page{Offset: offset, Limit: limit}}
		if keyword != "" {
			c.Kind = engine.CmdGetResourcesByKeyword
			c.Keyword = keyword
		}
		res, err := a.Run(cmd.Context(), c)
		if err != nil {
			return err
		}
		printResources(res.Resources)
		return nil
	},
}

var showCmd = &cobra.Command{
	Use:   "show HASH",
	Short: "Show one resource",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("show")
		if err != nil {
			return err
		}
		defer a.Close()

		res, err := a.Run(cmd.Context(), engine.Command{Kind: engine.CmdGetResourceByHash, Hashes: args})
		if err != nil {
			return err
		}
		if len(res.Resources) == 0 {
			return fmt.Errorf("no stored resource with hash %s", args[0])
		}
		printResource(res.Resources[0])
		return nil
	},
}

var findURICmd = &cobra.Command{
	Use:   "find-uri URI",
	Short: "Find resources by source uri",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		prefix, _ := cmd.Flags().GetBool("prefix")

		a, err := newApp("find-uri")
		if err != nil {
			return err
		}
		defer a.Close()

		c := engine.Command{Kind: engine.CmdGetResourcesByURI, URIs: args}
		if prefix {
			c = engine.Command{Kind: engine.CmdGetResourcesByURIPrefix, Prefix: args[0]}
		}
		res, err := a.Run(cmd.Context(), c)
		if err != nil {
			return err
		}
		printResources(res.Resources)
		return nil
	},
}

var resolveCmd = &cobra.Command{
	Use:   "resolve PATH...",
	Short: "Hash and parse files without importing them",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		domain, err := parseDomain(mustString(cmd, "domain"))
		if err != nil {
			return err
		}

		a, err := newApp("resolve")
		if err != nil {
			return err
		}
		defer a.Close()

		res, err := a.Run(cmd.Context(), engine.Command{Kind: engine.CmdResolveResources, Paths: args, Domain: domain})
		if err != nil {
			return err
		}
		printResources(res.Resources)
		return nil
	},
}

var importCmd = &cobra.Command{
	Use:   "import PATH...",
	Short: "Import files into the managed root",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		uris, _ := cmd.Flags().GetStringSlice("uri")
		move, _ := cmd.Flags().GetBool("move")
		domain, err := parseDomain(mustString(cmd, "domain"))
		if err != nil {
			return err
		}

		a, err := newApp("import")
		if err != nil {
			return err
		}
		defer a.Close()

		opts := make([]engine.ImportOptions, len(args))
		for i, p := range args {
			opts[i] = engine.ImportOptions{Path: p, Domain: domain, URIs: uris, Move: move}
		}
		res, err := a.Run(cmd.Context(), engine.Command{Kind: engine.CmdImportResources, Imports: opts})
		if err != nil {
			return fmt.Errorf("import failed: %w", err)
		}
		fmt.Printf("Imported %d of %d file(s)\n", len(res.Resources), len(args))
		printResources(res.Resources)
		return nil
	},
}

var tagCmd = &cobra.Command{
	Use:   "tag HASH TAG...",
	Short: "Add or remove tags",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		remove, _ := cmd.Flags().GetBool("remove")

		a, err := newApp("tag")
		if err != nil {
			return err
		}
		defer a.Close()

		u := resource.Update{Hash: args[0]}
		if remove {
			u.RemoveTags = args[1:]
		} else {
			u.Tags = args[1:]
		}
		if _, err := a.Run(cmd.Context(), engine.Command{Kind: engine.CmdUpdateResources, Updates: []resource.Update{u}}); err != nil {
			return err
		}
		fmt.Printf("Updated tags on %s\n", args[0])
		return nil
	},
}

var removeCmd = &cobra.Command{
	Use:   "remove HASH...",
	Short: "Delete stored files",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("remove")
		if err != nil {
			return err
		}
		defer a.Close()

		if _, err := a.Run(cmd.Context(), engine.Command{Kind: engine.CmdRemoveResources, Hashes: args}); err != nil {
			return err
		}
		fmt.Printf("Removed %d resource(s)\n", len(args))
		return nil
	},
}

var exportCmd = &cobra.Command{
	Use:   "export HASH...",
	Short: "Copy stored files to the export target",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dir, _ := cmd.Flags().GetString("dir")

		a, err := newApp("export")
		if err != nil {
			return err
		}
		defer a.Close()

		target, err := a.ExportTarget(cmd.Context(), dir)
		if err != nil {
			return err
		}
		res, err := a.Run(cmd.Context(), engine.Command{Kind: engine.CmdExportResources, Hashes: args, Target: target})
		if err != nil {
			return fmt.Errorf("export failed: %w", err)
		}
		for _, n := range res.Names {
			fmt.Println(n)
		}
		fmt.Printf("Exported %d file(s) to %s\n", res.Count, target.Describe())
		return nil
	},
}

var installCmd = &cobra.Command{
	Use:   "install HASH INSTANCE",
	Short: "Install a stored resource into a launcher instance",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("install")
		if err != nil {
			return err
		}
		defer a.Close()

		instance, err := filepath.Abs(args[1])
		if err != nil {
			return fmt.Errorf("resolving instance path: %w", err)
		}
		if _, err := a.Run(cmd.Context(), engine.Command{Kind: engine.CmdInstall, Hashes: args[:1], InstancePath: instance}); err != nil {
			return err
		}
		fmt.Printf("Installed %s into %s\n", args[0], instance)
		return nil
	},
}

var touchCmd = &cobra.Command{
	Use:   "touch PATH",
	Short: "Revalidate one path now",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("touch")
		if err != nil {
			return err
		}
		defer a.Close()

		res, err := a.Run(cmd.Context(), engine.Command{Kind: engine.CmdTouch, Paths: args})
		if err != nil {
			return err
		}
		if !res.OK {
			fmt.Printf("%s no longer exists; removed from the index\n", args[0])
			return nil
		}
		return a.Engine().Wait(cmd.Context())
	},
}

var gcCmd = &cobra.Command{
	Use:   "gc",
	Short: "Delete metadata no stored file references",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("gc")
		if err != nil {
			return err
		}
		defer a.Close()

		res, err := a.Run(cmd.Context(), engine.Command{Kind: engine.CmdSweepOrphans})
		if err != nil {
			return err
		}
		fmt.Printf("Removed %d orphaned metadata row(s)\n", res.Count)
		return nil
	},
}

func mustString(cmd *cobra.Command, name string) string {
	v, _ := cmd.Flags().GetString(name)
	return v
}

func init() {
	// config subcommands
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configListCmd)

	listCmd.Flags().Int("offset", 0, "Skip this many resources")
	listCmd.Flags().IntP("limit", "n", 0, "Maximum number of resources to show (0 for all)")
	listCmd.Flags().StringP("keyword", "k", "", "Only show resources whose path or name contains this")
	findURICmd.Flags().Bool("prefix", false, "Match every uri starting with URI")
	resolveCmd.Flags().StringP("domain", "d", "", "Domain hint for the files")
	importCmd.Flags().StringP("domain", "d", "", "Destination domain (derived from metadata when empty)")
	importCmd.Flags().StringSlice("uri", nil, "Source uri to attach (repeatable)")
	importCmd.Flags().Bool("move", false, "Rename instead of linking when possible")
	tagCmd.Flags().Bool("remove", false, "Remove the tags instead of adding them")
	exportCmd.Flags().String("dir", "", "Export into this directory instead of the configured target")

	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(scanCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(showCmd)
	rootCmd.AddCommand(findURICmd)
	rootCmd.AddCommand(resolveCmd)
	rootCmd.AddCommand(importCmd)
	rootCmd.AddCommand(tagCmd)
	rootCmd.AddCommand(removeCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(installCmd)
	rootCmd.AddCommand(touchCmd)
	rootCmd.AddCommand(gcCmd)
}
