package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"text/tabwriter"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/oceanprotocol/pdr-utils/internal/config"
	"github.com/oceanprotocol/pdr-utils/internal/metrics"
	"github.com/oceanprotocol/pdr-utils/internal/models"
	"github.com/oceanprotocol/pdr-utils/internal/storage"
	"github.com/oceanprotocol/pdr-utils/internal/subgraph"
	"github.com/oceanprotocol/pdr-utils/pkg/utils"
)

var (
	discoverSave bool
	discoverJSON bool
)

// discoverCmd runs one discovery pass against the subgraph
var discoverCmd = &cobra.Command{
	Use:   "discover",
	Short: "List the prediction contracts matching the configured owners and filters",
	RunE:  runDiscover,
}

func init() {
	discoverCmd.Flags().BoolVar(&discoverSave, "save", false, "persist discovered contracts to the configured storage")
	discoverCmd.Flags().BoolVar(&discoverJSON, "json", false, "print contracts as JSON")
}

// newDiscoverer wires the subgraph client and filters from configuration.
// m may be nil.
func newDiscoverer(cfg *config.Config, m *metrics.Manager) *subgraph.Discoverer {
	client := subgraph.NewClient(cfg.Subgraph.URL, cfg.Subgraph.RequestTimeout).WithMetrics(m)
	owners := cfg.Subgraph.OwnerAddrs()

	utils.NewSublogger("discovery").WithFields(logrus.Fields{
		"subgraph_url": client.URL(),
		"owners":       len(owners),
		"page_size":    cfg.Subgraph.PageSize,
	}).Info("Subgraph discovery configured")

	return subgraph.NewDiscoverer(client, owners, cfg.Subgraph.FilterSpec()).
		WithPageSize(cfg.Subgraph.PageSize).
		WithMetrics(m)
}

func runDiscover(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	result := newDiscoverer(cfg, nil).Discover(ctx)
	contracts := sortedContracts(result.Contracts)

	if discoverJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(result.Contracts); err != nil {
			return err
		}
	} else {
		printContracts(contracts)
	}

	if !result.Complete() {
		fmt.Fprintf(os.Stderr, "warning: discovery stopped after %d pages: %v\n", result.Pages, result.Err)
	}

	if discoverSave {
		store, err := storage.NewStorage(&cfg.Storage)
		if err != nil {
			return err
		}
		if err := store.Connect(); err != nil {
			return err
		}
		defer store.Close()
		if err := store.Migrate(); err != nil {
			return err
		}
		if err := store.SaveContracts(ctx, contracts); err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "saved %d contracts to %s storage\n", len(contracts), cfg.Storage.Type)
	}

	return nil
}

func sortedContracts(m map[string]*models.NormalizedContract) []*models.NormalizedContract {
	contracts := make([]*models.NormalizedContract, 0, len(m))
	for _, c := range m {
		contracts = append(contracts, c)
	}
	sort.Slice(contracts, func(i, j int) bool { return contracts[i].Address < contracts[j].Address })
	return contracts
}

func printContracts(contracts []*models.NormalizedContract) {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ADDRESS\tNAME\tSYMBOL\tBLOCKS/EPOCH\tBLOCKS/SUBSCRIPTION")
	for _, c := range contracts {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\n", c.Address, c.Name, c.Symbol, c.BlocksPerEpoch, c.BlocksPerSubscription)
	}
	w.Flush()
}
