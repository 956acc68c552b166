package main

import (
	"context"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	clierrors "github.com/mikedelcastillo/pip-pip/internal/errors"
	"github.com/mikedelcastillo/pip-pip/pkg/manifest"
	"github.com/mikedelcastillo/pip-pip/pkg/packets"
	"github.com/mikedelcastillo/pip-pip/pkg/protocol"
)

func schemaCmd(root *rootOptions) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "schema",
		Short: "Print the packet schema",
		Long: `Print every packet of the pip-pip schema with its code and fields.

Reserved packets are marked with an asterisk. The fingerprint changes
whenever an id, code, field name, field order or field type changes.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			m := manifest.FromRegistry(packets.Registry())
			w := cmd.OutOrStdout()

			if asJSON {
				data, err := m.JSON()
				if err != nil {
					return err
				}
				fmt.Fprintln(w, string(data))
				return nil
			}

			fmt.Fprintf(w, "fingerprint %s\n\n", m.Fingerprint)
			tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "CODE\tID\tBYTES\tFIELDS")
			for _, p := range m.Packets {
				id := p.ID
				if p.Reserved {
					id += "*"
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", p.Code, id, width(p.FixedLen), fieldList(p.Fields))
			}
			return tw.Flush()
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "print the manifest as JSON")
	cmd.AddCommand(publishCmd(root))
	return cmd
}

func width(n int) string {
	if n == protocol.Variable {
		return "var"
	}
	return fmt.Sprint(n)
}

func fieldList(fields []manifest.Field) string {
	parts := make([]string, len(fields))
	for i, f := range fields {
		parts[i] = f.Name + ":" + f.Serializer
	}
	return strings.Join(parts, " ")
}

// newPutter creates the S3 client used by schema publish.
var newPutter = func(ctx context.Context, region string) (manifest.ObjectPutter, error) {
	return manifest.NewS3Client(ctx, region)
}

func publishCmd(root *rootOptions) *cobra.Command {
	var bucket, region, key string

	cmd := &cobra.Command{
		Use:   "publish",
		Short: "Upload the schema manifest to S3",
		Long: `Upload the schema manifest to S3.

The manifest is written under --key and under a versioned key that embeds
the fingerprint. Flags override the [manifest] section of pipwire.toml and
PIPWIRE_S3_* environment variables. Credentials come from the default AWS
chain: AWS_* environment variables, shared config files, then instance
roles.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(root)
			if err != nil {
				return err
			}
			mc := cfg.Manifest
			if bucket != "" {
				mc.Bucket = bucket
			}
			if region != "" {
				mc.Region = region
			}
			if key != "" {
				mc.Key = key
			}
			if mc.Bucket == "" {
				return clierrors.New("P031")
			}

			m := manifest.FromRegistry(packets.Registry())
			client, err := newPutter(cmd.Context(), mc.Region)
			if err != nil {
				return clierrors.New("P030").Wrap(err)
			}
			pub := manifest.NewPublisher(client, mc.Bucket, mc.Key)
			keys, err := pub.Publish(cmd.Context(), m)
			if err != nil {
				return clierrors.New("P030").Wrap(err)
			}

			w := cmd.OutOrStdout()
			success(w, "Published schema %s", m.Fingerprint[:12])
			for _, k := range keys {
				info(w, "s3://%s/%s", mc.Bucket, k)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&bucket, "bucket", "", "S3 bucket")
	cmd.Flags().StringVar(&region, "region", "", "AWS region")
	cmd.Flags().StringVar(&key, "key", "", "object key of the latest manifest")
	return cmd
}
