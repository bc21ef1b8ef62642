// Package cli implements the ragline command line interface.
//
// Commands reach the core through the driving ports held in Services. The
// entry point supplies a BootstrapFunc that builds them once per process;
// tests inject mocks directly.
package cli

import (
	"context"
	"errors"
	"os"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/ragline/internal/core/ports/driven"
	"github.com/custodia-labs/ragline/internal/core/ports/driving"
	"github.com/custodia-labs/ragline/internal/logger"
)

// version is set at build time via -ldflags.
var version = "dev"

// skipServicesAnnotation marks commands that run without bootstrapping services.
const skipServicesAnnotation = "ragline/skip-services"

// Options carries global flag values to the bootstrap function.
type Options struct {
	Verbose   bool
	ConfigDir string
	DataDir   string
}

// Services holds everything commands need from the application.
type Services struct {
	Ingestion driving.IngestionService
	Retrieval driving.RetrievalService
	Chat      driving.ChatService
	Chatbots  driving.ChatbotService
	Migration driving.MigrationService
	Scheduler driving.Scheduler

	// Registry decides which files the watcher queues.
	Registry driven.NormaliserRegistry

	// WatchDirs are the upload directories watched by default.
	WatchDirs []string

	// Warnings are reported once after bootstrap, e.g. a provider that failed validation.
	Warnings []string

	// Close releases stores and caches.
	Close func() error
}

// BootstrapFunc builds the application services for one process.
type BootstrapFunc func(ctx context.Context, opts Options) (*Services, error)

var (
	verbose   bool
	configDir string
	dataDir   string

	bootstrap BootstrapFunc
	services  *Services
	// ownsServices is true when services were built by bootstrap and must be closed.
	ownsServices bool
)

var rootCmd = &cobra.Command{
	Use:   "ragline",
	Short: "Retrieval-augmented knowledge base and chatbot",
	Long: `ragline ingests files, web pages and posts into a vector knowledge base,
retrieves grounded context for questions, and answers them with an LLM.

Vectors live in a local SQLite store or a remote Pinecone index; the
migrate commands move them between the two.`,
	SilenceUsage:       true,
	PersistentPreRunE:  setupServices,
	PersistentPostRunE: teardownServices,
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().StringVar(&configDir, "config-dir", "", "configuration directory (default ~/.ragline)")
	rootCmd.PersistentFlags().StringVar(&dataDir, "data-dir", "", "data directory (default <config-dir>/data)")
}

// Execute runs the root command with the given bootstrap function.
func Execute(ctx context.Context, boot BootstrapFunc, buildVersion string) error {
	bootstrap = boot
	if buildVersion != "" {
		version = buildVersion
	}
	rootCmd.SetOut(os.Stdout)
	return rootCmd.ExecuteContext(ctx)
}

func setupServices(cmd *cobra.Command, _ []string) error {
	logger.SetVerbose(verbose)

	if services != nil || bootstrap == nil || skipsServices(cmd) {
		return nil
	}

	svc, err := bootstrap(cmd.Context(), Options{
		Verbose:   verbose,
		ConfigDir: configDir,
		DataDir:   dataDir,
	})
	if err != nil {
		return err
	}
	for _, w := range svc.Warnings {
		logger.Warn("%s", w)
	}

	services = svc
	ownsServices = true
	return nil
}

func teardownServices(_ *cobra.Command, _ []string) error {
	if !ownsServices || services == nil {
		return nil
	}
	closeFn := services.Close
	services = nil
	ownsServices = false
	if closeFn != nil {
		return closeFn()
	}
	return nil
}

// skipsServices reports whether cmd or one of its parents opts out of bootstrap.
func skipsServices(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if _, ok := c.Annotations[skipServicesAnnotation]; ok {
			return true
		}
	}
	return cmd.Name() == "help"
}

func skipServices() map[string]string {
	return map[string]string{skipServicesAnnotation: "true"}
}

func ingestionService() (driving.IngestionService, error) {
	if services == nil || services.Ingestion == nil {
		return nil, errors.New("ingestion service not configured")
	}
	return services.Ingestion, nil
}

func retrievalService() (driving.RetrievalService, error) {
	if services == nil || services.Retrieval == nil {
		return nil, errors.New("retrieval service not configured")
	}
	return services.Retrieval, nil
}

func chatService() (driving.ChatService, error) {
	if services == nil || services.Chat == nil {
		return nil, errors.New("chat service not configured")
	}
	return services.Chat, nil
}

func chatbotService() (driving.ChatbotService, error) {
	if services == nil || services.Chatbots == nil {
		return nil, errors.New("chatbot service not configured")
	}
	return services.Chatbots, nil
}

func migrationService() (driving.MigrationService, error) {
	if services == nil || services.Migration == nil {
		return nil, errors.New("migration service not configured")
	}
	return services.Migration, nil
}

func schedulerService() (driving.Scheduler, error) {
	if services == nil || services.Scheduler == nil {
		return nil, errors.New("scheduler not configured")
	}
	return services.Scheduler, nil
}
