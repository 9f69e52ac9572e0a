package main

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/edumarques81/stellar-stream-client/internal/domain/stream"
	"github.com/edumarques81/stellar-stream-client/internal/domain/track"
)

var (
	resolveTitle   string
	resolveArtist  string
	resolveAlbum   string
	resolveQuality string
)

var resolveCmd = &cobra.Command{
	Use:   "resolve",
	Short: "Resolve a track on the server and print its stream URL",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if resolveTitle == "" || resolveArtist == "" {
			return errors.New("--title and --artist are required")
		}

		quality := track.Quality(cfg.Playback.Quality)
		if resolveQuality != "" {
			q, err := track.ParseQuality(resolveQuality)
			if err != nil {
				return err
			}
			quality = q
		}

		client := newAPIClient(cfg)
		resolver := track.NewResolver(client,
			track.WithProgressSubscriber(client),
			track.WithProgressObserver(func(st track.DownloadStatus) {
				if !jsonOut {
					fmt.Fprintf(cmd.ErrOrStderr(), "  %s %.0f%%\n", st.Status, st.Progress)
				}
			}),
		)

		resolved, err := resolver.Resolve(cmd.Context(), track.Track{
			Title:      resolveTitle,
			ArtistName: resolveArtist,
			AlbumName:  resolveAlbum,
		})
		if err != nil {
			return err
		}

		url := stream.BuildURL(client.BaseURL(), resolved.ID, client.Token(), quality)
		if jsonOut {
			out, _ := json.MarshalIndent(map[string]any{
				"track":     resolved,
				"streamUrl": url,
			}, "", "  ")
			fmt.Fprintln(cmd.OutOrStdout(), string(out))
			return nil
		}

		fmt.Fprintf(cmd.OutOrStdout(), "%s\n  id:     %s\n  stream: %s\n", resolved, resolved.ID, url)
		return nil
	},
}

func init() {
	resolveCmd.Flags().StringVar(&resolveTitle, "title", "", "track title")
	resolveCmd.Flags().StringVar(&resolveArtist, "artist", "", "artist name")
	resolveCmd.Flags().StringVar(&resolveAlbum, "album", "", "album name")
	resolveCmd.Flags().StringVarP(&resolveQuality, "quality", "q", "", "stream quality (128, 192, 256, 320, flac)")
	rootCmd.AddCommand(resolveCmd)
}
