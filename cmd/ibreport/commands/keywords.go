package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rebase-analytics/ibreport/internal/googleauth"
	"github.com/rebase-analytics/ibreport/pkg/keywords"
)

var (
	kwPrefixes []string
	kwSuffixes []string
	kwGeo      []string
)

var keywordsCmd = &cobra.Command{
	Use:   "keywords",
	Short: "Looks up keyword search volumes in Google Ads.",
}

var keywordsVolumesCmd = &cobra.Command{
	Use:   "volumes [keyword...]",
	Short: "Prints the monthly search volume history of each keyword.",
	Long: "Prints the monthly search volume history of each keyword. With --prefix and --suffix,\n" +
		"every prefix/suffix combination is looked up as well.",
	RunE: func(cmd *cobra.Command, args []string) error {
		list := append([]string(nil), args...)
		if len(kwPrefixes) > 0 && len(kwSuffixes) > 0 {
			list = append(list, keywords.GenerateKeywords(kwPrefixes, kwSuffixes)...)
		}
		if len(list) == 0 {
			return fmt.Errorf("no keywords given")
		}

		ctx := cmd.Context()
		deps, err := newShared(ctx)
		if err != nil {
			return err
		}
		defer deps.Close()

		hc, err := googleauth.HTTPClient(ctx, googleauth.Config{
			CredentialsFile: cfg.Google.CredentialsFile,
			Subject:         cfg.Google.Subject,
			Scopes:          googleauth.AdsScopes,
		})
		if err != nil {
			return err
		}

		geo := kwGeo
		if len(geo) == 0 {
			geo = cfg.Ads.GeoTargets
		}
		c, err := keywords.New(keywords.Config{
			Endpoint:        cfg.Ads.Endpoint,
			CustomerID:      cfg.Ads.CustomerID,
			LoginCustomerID: cfg.Ads.LoginCustomerID,
			DeveloperToken:  cfg.Ads.DeveloperToken,
			Language:        cfg.Ads.Language,
			GeoTargets:      geo,
			UserAgent:       cfg.UserAgent,
			HTTPClient:      hc,
			Throttle:        deps.throttle,
		})
		if err != nil {
			return err
		}

		r, err := c.SearchVolumes(ctx, list)
		if err != nil {
			return err
		}
		return writeReport(cmd, r)
	},
}

func init() {
	flags := keywordsVolumesCmd.Flags()
	flags.StringSliceVar(&kwPrefixes, "prefix", nil, "Words combined with every --suffix.")
	flags.StringSliceVar(&kwSuffixes, "suffix", nil, "Words appended to every --prefix.")
	flags.StringSliceVar(&kwGeo, "geo", nil, "Geo target constants, e.g. geoTargetConstants/2276. Defaults to ads.geoTargets.")

	keywordsCmd.AddCommand(keywordsVolumesCmd)
	rootCmd.AddCommand(keywordsCmd)
}
