package main

import (
	"fmt"
	"io"
	"os"

	"github.com/emperorhan/collection-scanner/internal/domain/model"
	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func newCollectionsCmd(opts *globalOptions) *cobra.Command {
	var owner string

	cmd := &cobra.Command{
		Use:     "collections",
		Aliases: []string{"col"},
		Short:   "List and edit an owner's collections",
	}
	cmd.PersistentFlags().StringVar(&owner, "owner", envOr("OWNER_ADDRESS", ""), "Owner address")

	requireOwner := func() error {
		if !common.IsHexAddress(owner) {
			return fmt.Errorf("--owner must be a hex address, got %q", owner)
		}
		return nil
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "Show stored collections, including inactive ones",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireOwner(); err != nil {
				return err
			}
			repo, closeRepo, err := opts.openRepo(cmd.Context())
			if err != nil {
				return err
			}
			defer closeRepo()

			rows, err := repo.ListOwned(cmd.Context(), owner)
			if err != nil {
				return err
			}
			printOwned(cmd.OutOrStdout(), rows)
			return nil
		},
	}

	var name string
	add := &cobra.Command{
		Use:   "add <collection>",
		Short: "Add or reactivate a collection",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireOwner(); err != nil {
				return err
			}
			if !common.IsHexAddress(args[0]) {
				return fmt.Errorf("collection must be a hex address, got %q", args[0])
			}
			repo, closeRepo, err := opts.openRepo(cmd.Context())
			if err != nil {
				return err
			}
			defer closeRepo()

			c := &model.OwnedCollection{Owner: owner, Address: args[0], IsActive: true}
			if name != "" {
				c.Name = &name
			}
			if err := repo.Upsert(cmd.Context(), c); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "added %s\n", model.NormalizeAddress(args[0]))
			return nil
		},
	}
	add.Flags().StringVar(&name, "name", "", "Display name")

	remove := &cobra.Command{
		Use:     "remove <collection>",
		Aliases: []string{"rm"},
		Short:   "Deactivate a collection",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireOwner(); err != nil {
				return err
			}
			repo, closeRepo, err := opts.openRepo(cmd.Context())
			if err != nil {
				return err
			}
			defer closeRepo()

			if err := repo.Deactivate(cmd.Context(), owner, args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deactivated %s\n", model.NormalizeAddress(args[0]))
			return nil
		},
	}

	var file string
	importCmd := &cobra.Command{
		Use:   "import",
		Short: "Upsert collections from a YAML file",
		Long: `Upsert every collection listed in a YAML file:

  owner: "0x5290..."        # optional, overrides --owner
  collections:
    - address: "0xde70..."
      name: Genesis
    - address: "0x1f98..."
      active: false`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(file)
			if err != nil {
				return fmt.Errorf("open %s: %w", file, err)
			}
			defer f.Close()

			cf, err := parseCollectionsFile(f)
			if err != nil {
				return fmt.Errorf("parse %s: %w", file, err)
			}
			if cf.Owner != "" {
				owner = cf.Owner
			}
			if err := requireOwner(); err != nil {
				return err
			}

			repo, closeRepo, err := opts.openRepo(cmd.Context())
			if err != nil {
				return err
			}
			defer closeRepo()

			for _, c := range cf.owned(owner) {
				if err := repo.Upsert(cmd.Context(), &c); err != nil {
					return fmt.Errorf("upsert %s: %w", c.Address, err)
				}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "imported %d collections for %s\n", len(cf.Collections), model.NormalizeAddress(owner))
			return nil
		},
	}
	importCmd.Flags().StringVarP(&file, "file", "f", "", "YAML file to import")
	_ = importCmd.MarkFlagRequired("file")

	cmd.AddCommand(list, add, remove, importCmd)
	return cmd
}

type collectionsFile struct {
	Owner       string          `yaml:"owner"`
	Collections []collectionRow `yaml:"collections"`
}

type collectionRow struct {
	Address string `yaml:"address"`
	Name    string `yaml:"name"`
	Active  *bool  `yaml:"active"`
}

func parseCollectionsFile(r io.Reader) (*collectionsFile, error) {
	var cf collectionsFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&cf); err != nil {
		if err == io.EOF {
			return nil, fmt.Errorf("empty file")
		}
		return nil, err
	}
	if cf.Owner != "" && !common.IsHexAddress(cf.Owner) {
		return nil, fmt.Errorf("owner %q is not a hex address", cf.Owner)
	}
	if len(cf.Collections) == 0 {
		return nil, fmt.Errorf("no collections listed")
	}
	seen := make(map[common.Address]int, len(cf.Collections))
	for i, c := range cf.Collections {
		if !common.IsHexAddress(c.Address) {
			return nil, fmt.Errorf("collections[%d]: %q is not a hex address", i, c.Address)
		}
		key := common.HexToAddress(c.Address)
		if j, dup := seen[key]; dup {
			return nil, fmt.Errorf("collections[%d]: duplicate of collections[%d]", i, j)
		}
		seen[key] = i
	}
	return &cf, nil
}

func (cf *collectionsFile) owned(owner string) []model.OwnedCollection {
	out := make([]model.OwnedCollection, 0, len(cf.Collections))
	for _, row := range cf.Collections {
		c := model.OwnedCollection{
			Owner:    owner,
			Address:  row.Address,
			IsActive: row.Active == nil || *row.Active,
		}
		if row.Name != "" {
			name := row.Name
			c.Name = &name
		}
		out = append(out, c)
	}
	return out
}

func printOwned(w io.Writer, rows []model.OwnedCollection) {
	p := newPalette()
	if len(rows) == 0 {
		p.line(w, p.muted, "no collections stored")
		return
	}
	p.line(w, p.heading, "%-44s %-8s %s", "ADDRESS", "STATUS", "NAME")
	for _, row := range rows {
		ref := row.Ref()
		if row.IsActive {
			p.line(w, p.listed, "%-44s %-8s %s", ref.Address, "active", ref.Name)
		} else {
			p.line(w, p.missing, "%-44s %-8s %s", ref.Address, "inactive", ref.Name)
		}
	}
}
