package handlers

import (
	"context"
	"fmt"
	"slices"
	"text/tabwriter"

	"github.com/krisavpn/fleetctl/internal/fleet"
)

// Status prints the recorded fleet and the delta a deploy would apply. It
// is read-only: no lock is taken and nothing is mutated.
func Status(ctx context.Context, configPath string) error {
	cfg, err := loadConfigFile(configPath)
	if err != nil {
		return err
	}

	store, err := newStateStore(ctx, cfg)
	if err != nil {
		return err
	}
	st, err := store.Load(ctx)
	if err != nil {
		return err
	}

	desired := cfg.DesiredNodes()
	delta := fleet.Diff(desired, st.Nodes)

	fmt.Fprintf(stdout, "Fleet %s: %d node(s) recorded, %d declared\n\n", cfg.Fleet.Name, len(st.Nodes), len(desired))

	w := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tADDRESS\tPROVISIONED\tSTATUS")
	for _, name := range st.Names() {
		node := st.Nodes[name]
		status := "in-sync"
		switch {
		case slices.Contains(delta.ToReplace, name):
			status = "replace-pending"
		case slices.Contains(delta.DestroyNames(), name):
			status = "destroy-pending"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", name, node.PublicAddress, node.ProvisionedAt.Format("2006-01-02 15:04"), status)
	}
	for _, spec := range delta.ToCreate {
		fmt.Fprintf(w, "%s\t-\t-\tcreate-pending\n", spec.Name)
	}
	if err := w.Flush(); err != nil {
		return err
	}

	if delta.Empty() {
		fmt.Fprintln(stdout, "\nFleet matches the declared state.")
	} else {
		fmt.Fprintf(stdout, "\nPending: %d create, %d destroy, %d replace. Run 'fleetctl deploy' to reconcile.\n",
			len(delta.ToCreate), len(delta.ToDestroy), len(delta.ToReplace))
	}
	return nil
}
