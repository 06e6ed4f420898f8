package main

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/kalambet/sillage/internal/analysis"
	"github.com/kalambet/sillage/internal/api"
	"github.com/kalambet/sillage/internal/collection"
	"github.com/kalambet/sillage/internal/config"
	"github.com/kalambet/sillage/internal/consult"
	"github.com/kalambet/sillage/internal/probe"
	"github.com/kalambet/sillage/internal/quota"
	"github.com/kalambet/sillage/internal/scan"
)

func userFlag(cmd *cobra.Command) (string, error) {
	user, _ := cmd.Flags().GetString("user")
	if user == "" {
		return "", errors.New("--user is required")
	}
	return user, nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// --- scan ---

var scanCmd = &cobra.Command{
	Use:   "scan <image>",
	Short: "Identify the perfume in a bottle photo",
	Long: `Identify the perfume in a bottle photo and add it to the collection.

Examples:
  sillage scan ./bottle.jpg --user ana
  sillage scan ./bottle.png --user ana --json`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		user, err := userFlag(cmd)
		if err != nil {
			return err
		}
		asJSON, _ := cmd.Flags().GetBool("json")

		data, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("reading image: %w", err)
		}
		mime := http.DetectContentType(data)
		if !strings.HasPrefix(mime, "image/") {
			return fmt.Errorf("%s is not an image (%s)", args[0], mime)
		}

		client, err := newAPIClient(user)
		if err != nil {
			return err
		}
		resp, err := client.post(cmd.Context(), "/v1/scans", api.FrameRequest{
			Image:    base64.StdEncoding.EncodeToString(data),
			MIMEType: mime,
		})
		if err != nil {
			return err
		}

		var out api.ScanResponse
		if resp.StatusCode == http.StatusBadGateway {
			// Failed analyses carry a user-facing message instead of an error envelope.
			defer resp.Body.Close()
			if err := json.NewDecoder(resp.Body).Decode(&out); err != nil || out.Message == "" {
				return fmt.Errorf("server returned %d", resp.StatusCode)
			}
			return errors.New(out.Message)
		}
		if err := decodeJSON(resp, &out); err != nil {
			return err
		}
		if asJSON {
			return printJSON(out)
		}
		printScan(out)
		return nil
	},
}

func printScan(out api.ScanResponse) {
	if out.Result.Kind != analysis.KindIdentified || out.Result.Identified == nil {
		printWarning("%s", out.Message)
		return
	}
	printIdentification(out.Result.Identified)
	switch {
	case out.Duplicate && out.Item != nil:
		printField("Collection", "already saved as "+out.Item.ID)
	case out.Item != nil:
		printSuccess("Saved to collection as %s", out.Item.ID)
	}
}

func printIdentification(id *analysis.Identification) {
	fmt.Println(colorize(colorBold, id.Brand+" "+id.Name))
	printField("Concentration", id.Concentration)
	printField("Family", id.OlfactoryFamily)
	printField("Top notes", strings.Join(id.Notes.Top, ", "))
	printField("Heart notes", strings.Join(id.Notes.Heart, ", "))
	printField("Base notes", strings.Join(id.Notes.Base, ", "))
	printField("Occasions", strings.Join(id.Usage.Occasions, ", "))
	printField("Seasons", strings.Join(id.Usage.Season, ", "))
	printField("Time of day", id.Usage.TimeOfDay)
	if id.Description != "" {
		fmt.Printf("\n%s\n", id.Description)
	}
}

func init() {
	scanCmd.Flags().String("user", "", "collection owner")
	scanCmd.Flags().Bool("json", false, "print the raw response")
}

// --- watch ---

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Watch a frame directory and scan once a bottle is in view",
	Long: `Watch a directory for camera frames. The newest image is probed at a
fixed interval; once a bottle is detected a high-quality frame is scanned.

Runs in-process against the local data directory; the server need not be
running.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		user, err := userFlag(cmd)
		if err != nil {
			return err
		}
		frames, _ := cmd.Flags().GetString("frames")
		if frames == "" {
			return errors.New("--frames is required")
		}
		continuous, _ := cmd.Flags().GetBool("continuous")

		cfg, err := config.Load()
		if err != nil {
			return err
		}
		setupLogging(cfg)

		a, err := buildApp(cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		ctx := cmd.Context()
		loop := probe.New(
			probe.DirCamera{Dir: frames},
			a.controller,
			a.scanner.Submitter(user, func(out scan.Outcome) {
				printScan(api.ScanResponse{
					Status:    string(out.Result.Kind),
					Message:   out.Result.Message(),
					Result:    out.Result,
					Item:      out.Item,
					PhotoURL:  out.PhotoURL,
					Duplicate: out.Duplicate,
				})
			}),
			probe.Options{
				Interval:   cfg.Probe.Interval,
				MinSpacing: cfg.Probe.MinSpacing,
				OnTransition: func(from, to probe.State) {
					if to == probe.Candidate {
						printStep("Bottle detected, capturing...")
					}
				},
			},
		)

		printStep("Watching %s (Ctrl+C to stop)", frames)
		for {
			if err := loop.Start(ctx); err != nil {
				return err
			}
			select {
			case <-ctx.Done():
				loop.Stop()
				<-loop.Done()
				return nil
			case <-loop.Done():
			}
			if err := loop.Err(); err != nil {
				var denied *quota.DeniedError
				if errors.As(err, &denied) {
					return err
				}
				printError("%v", err)
			}
			if !continuous {
				return loop.Err()
			}
		}
	},
}

func init() {
	watchCmd.Flags().String("user", "", "collection owner")
	watchCmd.Flags().String("frames", "", "directory the camera writes frames into")
	watchCmd.Flags().Bool("continuous", false, "keep watching after each scan")
}

// --- consult ---

var consultCmd = &cobra.Command{
	Use:   "consult <question>",
	Short: "Ask the perfume sommelier",
	Long: `Ask the perfume sommelier about one collected perfume or the whole
collection. Answers are in Spanish.

Examples:
  sillage consult --user ana --item 01J... "¿Lo puedo usar en verano?"
  sillage consult --user ana "¿Qué me falta para la noche?"`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		user, err := userFlag(cmd)
		if err != nil {
			return err
		}
		item, _ := cmd.Flags().GetString("item")
		userContext, _ := cmd.Flags().GetString("context")

		req := api.ConsultRequest{
			Question:    strings.Join(args, " "),
			UserContext: userContext,
			PerfumeID:   item,
			Collection:  item == "",
		}

		client, err := newAPIClient(user)
		if err != nil {
			return err
		}
		resp, err := client.post(cmd.Context(), "/v1/consult", req)
		if err != nil {
			return err
		}
		var ans consult.Answer
		if err := decodeJSON(resp, &ans); err != nil {
			return err
		}
		fmt.Println(ans.Text)
		return nil
	},
}

func init() {
	consultCmd.Flags().String("user", "", "collection owner")
	consultCmd.Flags().String("item", "", "collection item id (default: whole collection)")
	consultCmd.Flags().String("context", "", "extra context, e.g. the occasion")
}

// --- collection ---

var collectionCmd = &cobra.Command{
	Use:   "collection",
	Short: "Browse and manage a perfume collection",
}

var collectionListCmd = &cobra.Command{
	Use:   "list",
	Short: "List collected perfumes, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		user, err := userFlag(cmd)
		if err != nil {
			return err
		}
		limit, _ := cmd.Flags().GetInt("limit")

		client, err := newAPIClient(user)
		if err != nil {
			return err
		}
		resp, err := client.get(cmd.Context(), fmt.Sprintf("/v1/collection?limit=%d", limit))
		if err != nil {
			return err
		}
		var items []collection.Item
		if err := decodeJSON(resp, &items); err != nil {
			return err
		}

		if len(items) == 0 {
			fmt.Println("The collection is empty.")
			return nil
		}
		for _, it := range items {
			rating := ""
			if r := it.AIData.UserReview; r != nil {
				rating = strings.Repeat("*", r.Rating)
			}
			fmt.Printf("%s  %s  %s %s  %s\n",
				colorize(colorCyan, it.ID),
				it.CreatedAt.Format("2006-01-02"),
				it.AIData.Brand,
				it.AIData.Name,
				rating,
			)
		}
		return nil
	},
}

var collectionShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show a collected perfume",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		user, err := userFlag(cmd)
		if err != nil {
			return err
		}
		client, err := newAPIClient(user)
		if err != nil {
			return err
		}
		resp, err := client.get(cmd.Context(), "/v1/collection/"+url.PathEscape(args[0]))
		if err != nil {
			return err
		}
		var item collection.Item
		if err := decodeJSON(resp, &item); err != nil {
			return err
		}

		printIdentification(&item.AIData.Identification)
		printField("Photo", item.PhotoURL)
		if r := item.AIData.UserReview; r != nil {
			printField("Review", strings.TrimSpace(fmt.Sprintf("%d/5 %s", r.Rating, r.Comment)))
		}
		return nil
	},
}

var collectionDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Remove a perfume from the collection",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		user, err := userFlag(cmd)
		if err != nil {
			return err
		}
		client, err := newAPIClient(user)
		if err != nil {
			return err
		}
		resp, err := client.delete(cmd.Context(), "/v1/collection/"+url.PathEscape(args[0]))
		if err != nil {
			return err
		}
		if err := decodeJSON(resp, nil); err != nil {
			return err
		}
		printSuccess("Deleted %s", args[0])
		return nil
	},
}

var collectionReviewCmd = &cobra.Command{
	Use:   "review <id> <rating 1-5> [comment]",
	Short: "Rate a collected perfume",
	Args:  cobra.RangeArgs(2, 3),
	RunE: func(cmd *cobra.Command, args []string) error {
		user, err := userFlag(cmd)
		if err != nil {
			return err
		}
		rating, err := strconv.Atoi(args[1])
		if err != nil {
			return fmt.Errorf("rating must be a number: %w", err)
		}
		review := collection.Review{Rating: rating}
		if len(args) == 3 {
			review.Comment = args[2]
		}
		if err := collection.ValidateReview(review); err != nil {
			return err
		}

		client, err := newAPIClient(user)
		if err != nil {
			return err
		}
		resp, err := client.put(cmd.Context(), "/v1/collection/"+url.PathEscape(args[0])+"/review", review)
		if err != nil {
			return err
		}
		if err := decodeJSON(resp, nil); err != nil {
			return err
		}
		printSuccess("Saved review for %s", args[0])
		return nil
	},
}

func init() {
	collectionCmd.PersistentFlags().String("user", "", "collection owner")
	collectionListCmd.Flags().Int("limit", 50, "maximum number of items to list")
	collectionCmd.AddCommand(collectionListCmd)
	collectionCmd.AddCommand(collectionShowCmd)
	collectionCmd.AddCommand(collectionDeleteCmd)
	collectionCmd.AddCommand(collectionReviewCmd)
}

// --- wishlist ---

var wishlistCmd = &cobra.Command{
	Use:   "wishlist",
	Short: "Manage perfumes the user wants",
}

var wishlistListCmd = &cobra.Command{
	Use:   "list",
	Short: "List wishlist entries",
	RunE: func(cmd *cobra.Command, args []string) error {
		user, err := userFlag(cmd)
		if err != nil {
			return err
		}
		client, err := newAPIClient(user)
		if err != nil {
			return err
		}
		resp, err := client.get(cmd.Context(), "/v1/wishlist")
		if err != nil {
			return err
		}
		var entries []struct {
			ID          string `json:"id"`
			Brand       string `json:"brand"`
			PerfumeName string `json:"perfume_name"`
		}
		if err := decodeJSON(resp, &entries); err != nil {
			return err
		}
		if len(entries) == 0 {
			fmt.Println("The wishlist is empty.")
			return nil
		}
		for _, e := range entries {
			fmt.Printf("%s  %s %s\n", colorize(colorCyan, e.ID), e.Brand, e.PerfumeName)
		}
		return nil
	},
}

var wishlistToggleCmd = &cobra.Command{
	Use:   "toggle <brand> <name>",
	Short: "Add a perfume to the wishlist, or remove it if already there",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		user, err := userFlag(cmd)
		if err != nil {
			return err
		}
		client, err := newAPIClient(user)
		if err != nil {
			return err
		}
		resp, err := client.post(cmd.Context(), "/v1/wishlist/toggle", api.WishlistRequest{
			Brand:       args[0],
			PerfumeName: args[1],
		})
		if err != nil {
			return err
		}
		var out map[string]bool
		if err := decodeJSON(resp, &out); err != nil {
			return err
		}
		if out["in_wishlist"] {
			printSuccess("Added %s %s to the wishlist", args[0], args[1])
		} else {
			printSuccess("Removed %s %s from the wishlist", args[0], args[1])
		}
		return nil
	},
}

func init() {
	wishlistCmd.PersistentFlags().String("user", "", "wishlist owner")
	wishlistCmd.AddCommand(wishlistListCmd)
	wishlistCmd.AddCommand(wishlistToggleCmd)
}

// --- quota ---

var quotaCmd = &cobra.Command{
	Use:   "quota",
	Short: "Show today's usage against the daily limits",
	RunE: func(cmd *cobra.Command, args []string) error {
		user, err := userFlag(cmd)
		if err != nil {
			return err
		}
		client, err := newAPIClient(user)
		if err != nil {
			return err
		}
		resp, err := client.get(cmd.Context(), "/v1/quota")
		if err != nil {
			return err
		}
		var body struct {
			Quota []quota.Decision `json:"quota"`
		}
		if err := decodeJSON(resp, &body); err != nil {
			return err
		}
		for _, d := range body.Quota {
			printStatus(string(d.Action), "%s", quotaLabel(d))
		}
		return nil
	},
}

func quotaLabel(d quota.Decision) string {
	if d.Limit == 0 {
		return fmt.Sprintf("%d used (%s, unlimited)", d.Used, d.Tier)
	}
	label := fmt.Sprintf("%d/%d used (%s)", d.Used, d.Limit, d.Tier)
	if !d.Allowed {
		label += ", limit reached"
	}
	return label
}

func init() {
	quotaCmd.Flags().String("user", "", "user to report on")
}

// --- profile ---

var profileCmd = &cobra.Command{
	Use:   "profile",
	Short: "Show or update a user profile",
}

var profileShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the profile as JSON",
	RunE: func(cmd *cobra.Command, args []string) error {
		user, err := userFlag(cmd)
		if err != nil {
			return err
		}
		client, err := newAPIClient(user)
		if err != nil {
			return err
		}
		resp, err := client.get(cmd.Context(), "/v1/profile")
		if err != nil {
			return err
		}
		var p any
		if err := decodeJSON(resp, &p); err != nil {
			return err
		}
		return printJSON(p)
	},
}

var profileSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a profile field (display_name, tier, scan_limit_daily, consult_limit_daily)",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		user, err := userFlag(cmd)
		if err != nil {
			return err
		}
		client, err := newAPIClient(user)
		if err != nil {
			return err
		}
		resp, err := client.patch(cmd.Context(), "/v1/profile", profilePatch(args[0], args[1]))
		if err != nil {
			return err
		}
		if err := decodeJSON(resp, nil); err != nil {
			return err
		}
		printSuccess("Set %s = %s", args[0], args[1])
		return nil
	},
}

// profilePatch sends numeric values as JSON numbers.
func profilePatch(key, value string) map[string]any {
	if n, err := strconv.Atoi(value); err == nil {
		return map[string]any{key: n}
	}
	return map[string]any{key: value}
}

func init() {
	profileCmd.PersistentFlags().String("user", "", "user whose profile to manage")
	profileCmd.AddCommand(profileShowCmd)
	profileCmd.AddCommand(profileSetCmd)
}

// --- mcp ---

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve the MCP tools over stdio",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		setupLogging(cfg)

		a, err := buildApp(cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		s := api.NewMCPServer(api.MCPDeps{
			Store:   a.store,
			Scanner: a.scanner,
			Consult: a.consultant,
		})
		return server.NewStdioServer(s).Listen(cmd.Context(), os.Stdin, os.Stdout)
	},
}

// --- config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or update configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		for _, k := range config.ShowAll(cfg) {
			fmt.Printf("  %s = %s\n", colorize(colorBold, k.Key), k.Value)
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]

		if err := config.SetKey(key, value); err != nil {
			return err
		}

		printSuccess("Set %s = %s", key, value)
		return nil
	},
}

var configUnsetCmd = &cobra.Command{
	Use:       "unset <key>",
	Short:     "Restore a configuration value to its default",
	Args:      cobra.ExactArgs(1),
	ValidArgs: config.ValidKeys(),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := config.UnsetKey(args[0]); err != nil {
			return err
		}
		printSuccess("Unset %s", args[0])
		return nil
	},
}

func init() {
	configSetCmd.ValidArgs = config.ValidKeys()
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configUnsetCmd)
}
