package main

import (
	"fmt"
	"time"

	"github.com/emperorhan/collection-scanner/internal/domain/event"
	"github.com/emperorhan/collection-scanner/internal/domain/model"
	"github.com/spf13/cobra"
)

func newNotifyCmd(opts *globalOptions) *cobra.Command {
	var (
		owner      string
		collection string
		reason     string
	)

	cmd := &cobra.Command{
		Use:   "notify",
		Short: "Publish a collections-changed event",
		Long: `Publish a collections-changed event on the Redis channel the scanner
listens to. With --collection only that collection's cached listing result is
dropped; without it the whole listing cache is purged.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			pub, closePub, err := opts.openPublisher(cmd.Context())
			if err != nil {
				return err
			}
			defer closePub()

			ev := event.CollectionsChanged{
				Owner:  model.NormalizeAddress(owner),
				Reason: reason,
				At:     time.Now().UTC(),
			}
			if collection != "" {
				ev.Collection = model.NormalizeAddress(collection)
			}
			if err := pub.Publish(cmd.Context(), ev); err != nil {
				return fmt.Errorf("publish: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "published %s change on %s\n", reason, opts.channel)
			return nil
		},
	}
	cmd.Flags().StringVar(&owner, "owner", envOr("OWNER_ADDRESS", ""), "Owner address (empty targets every scanner)")
	cmd.Flags().StringVar(&collection, "collection", "", "Collection whose listings changed")
	cmd.Flags().StringVar(&reason, "reason", "manual", "Reason recorded with the event")
	return cmd
}
