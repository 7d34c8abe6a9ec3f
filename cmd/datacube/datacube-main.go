package main

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"cloud.google.com/go/storage"
	"github.com/airbusgeo/osio"
	"github.com/airbusgeo/osio/gcs"
	"github.com/google/tiff"
	"github.com/spf13/cobra"
	"go.airbusds-geo.com/log"
	"sigs.k8s.io/yaml"

	"github.com/geowerk/datacube"
	"github.com/geowerk/datacube/tiffsrc"
	"github.com/geowerk/datacube/zarrstore"
)

var stcl *storage.Client
var gcsa *osio.Adapter

var verbose bool
var blocksize string
var numCachedBlocks int
var startTime time.Time

var varNames []string
var requestFile string
var tileWidth, tileHeight int
var invertY bool
var uvDelta float64
var fillValue float64
var workers int
var compressLevel int
var addr string
var arrayName string

var rootCmd = &cobra.Command{
	Use:   "datacube",
	Short: "swath rectification and zarr cube cli",
	CompletionOptions: cobra.CompletionOptions{
		DisableDefaultCmd: true,
	},
	SilenceUsage: true,

	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		startTime = time.Now()
		if !verbose {
			os.Setenv("LOGLEVEL", "info")
			log.Structured()
		}
		ctx := cmd.Context()
		var err error

		if stcl, err = storage.NewClient(ctx); err != nil {
			return fmt.Errorf("storage.newclient: %w", err)
		}
		gcsh, err := gcs.Handle(ctx, gcs.GCSClient(stcl))
		if err != nil {
			return fmt.Errorf("gcs.handle: %w", err)
		}
		gcsa, err = osio.NewAdapter(gcsh, osio.BlockSize(blocksize), osio.NumCachedBlocks(numCachedBlocks))
		if err != nil {
			return fmt.Errorf("osio.new: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, _ []string) {
		log.Logger(cmd.Context()).Sugar().Debugf("command %s took %.1fs",
			cmd.Name(), time.Since(startTime).Seconds())
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&verbose, "verbose", false, "verbose output")
	rootCmd.PersistentFlags().StringVar(&blocksize, "blocksize", "512k", "gs cache blocksize")
	rootCmd.PersistentFlags().IntVar(&numCachedBlocks, "numblocks", 1000, "number of gs cached blocks")
	rootCmd.AddCommand(rectifyCmd, serveCmd, infoCmd)

	rectifyCmd.Flags().StringArrayVar(&varNames, "var", nil, "variables to rectify (default: all matching the source grid)")
	rectifyCmd.Flags().StringVar(&requestFile, "request", "", "yaml file describing the output grid")
	rectifyCmd.Flags().IntVar(&tileWidth, "tileWidth", 512, "output tile width")
	rectifyCmd.Flags().IntVar(&tileHeight, "tileHeight", 512, "output tile height")
	rectifyCmd.Flags().BoolVar(&invertY, "invertY", false, "store rows with descending y coordinates")
	rectifyCmd.Flags().Float64Var(&uvDelta, "uvDelta", datacube.DefaultUVDelta, "source pixel boundary tolerance")
	rectifyCmd.Flags().Float64Var(&fillValue, "fill", math.NaN(), "value of unmapped output cells")
	rectifyCmd.Flags().IntVar(&workers, "workers", 0, "parallel chunk computations (0: all cpus)")
	rectifyCmd.Flags().IntVar(&compressLevel, "zlevel", 8, "zlib compression level (0: uncompressed)")

	serveCmd.Flags().StringVar(&addr, "addr", ":8080", "listen address")
	serveCmd.Flags().StringVar(&arrayName, "name", "band", "array name for tiff inputs")
	serveCmd.Flags().StringArrayVar(&varNames, "var", nil, "variables to rectify (default: all matching the source grid)")
	serveCmd.Flags().IntVar(&tileWidth, "tileWidth", 512, "output tile width")
	serveCmd.Flags().IntVar(&tileHeight, "tileHeight", 512, "output tile height")
	serveCmd.Flags().BoolVar(&invertY, "invertY", false, "store rows with descending y coordinates")
	serveCmd.Flags().Float64Var(&uvDelta, "uvDelta", datacube.DefaultUVDelta, "source pixel boundary tolerance")
	serveCmd.Flags().Float64Var(&fillValue, "fill", math.NaN(), "value of unmapped output cells")
	serveCmd.Flags().IntVar(&compressLevel, "zlevel", 8, "zlib compression level (0: uncompressed)")
}

// gridRequest is the yaml description of an explicit output grid.
type gridRequest struct {
	Width  int     `json:"width"`
	Height int     `json:"height"`
	XMin   float64 `json:"xmin"`
	YMin   float64 `json:"ymin"`
	Res    float64 `json:"res"`
}

func rectifyOptions() ([]datacube.RectifyOption, error) {
	opts := []datacube.RectifyOption{
		datacube.WithTileSize(tileWidth, tileHeight),
		datacube.UVDelta(uvDelta),
		datacube.FillValue(fillValue),
	}
	if len(varNames) > 0 {
		opts = append(opts, datacube.VarNames(varNames...))
	}
	if invertY {
		opts = append(opts, datacube.InvertY())
	}
	if compressLevel <= 0 {
		opts = append(opts, datacube.Compressor(nil))
	} else {
		opts = append(opts, datacube.Compressor(zarrstore.Zlib{Level: compressLevel}))
	}
	if requestFile != "" {
		raw, err := os.ReadFile(requestFile)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", requestFile, err)
		}
		req := gridRequest{}
		if err := yaml.Unmarshal(raw, &req); err != nil {
			return nil, fmt.Errorf("parse %s: %w", requestFile, err)
		}
		geom, err := datacube.NewGridGeom(req.Width, req.Height, req.XMin, req.YMin, req.Res)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", requestFile, err)
		}
		opts = append(opts, datacube.OutputGeom(geom))
	}
	return opts, nil
}

var rectifyCmd = &cobra.Command{
	Use:   "rectify src.zarr dst.zarr",
	Short: "resample a swath dataset onto a regular grid",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		opts, err := rectifyOptions()
		if err != nil {
			return err
		}
		ds, err := datacube.OpenZarr(args[0])
		if err != nil {
			return fmt.Errorf("open %s: %w", args[0], err)
		}
		store, err := datacube.NewCubeStore(ds, opts...)
		if err != nil {
			return fmt.Errorf("cube store: %w", err)
		}
		if store == nil {
			log.Logger(ctx).Sugar().Warnf("%s does not intersect the requested grid, nothing written", args[0])
			return nil
		}
		defer store.Close()
		if err := datacube.WriteZarr(args[1], store, workers); err != nil {
			return fmt.Errorf("write %s: %w", args[1], err)
		}
		log.Logger(ctx).Sugar().Infof("wrote %s", args[1])
		return nil
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve src.zarr|src.tif",
	Short: "serve a dataset as a virtual zarr store over http, rectifying on the fly",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		var store *zarrstore.Store
		var err error
		if strings.HasSuffix(args[0], ".tif") || strings.HasSuffix(args[0], ".tiff") {
			store, err = tiffStore(args[0])
		} else {
			store, err = rectifyStore(args[0])
		}
		if err != nil {
			return err
		}
		if store == nil {
			return fmt.Errorf("%s does not intersect the requested grid", args[0])
		}
		defer store.Close()

		srv := &http.Server{Addr: addr, Handler: storeHandler(store)}
		go func() {
			<-ctx.Done()
			sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			srv.Shutdown(sctx)
		}()
		log.Logger(ctx).Sugar().Infof("serving %s on %s", args[0], addr)
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	},
}

func rectifyStore(src string) (*zarrstore.Store, error) {
	opts, err := rectifyOptions()
	if err != nil {
		return nil, err
	}
	ds, err := datacube.OpenZarr(src)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", src, err)
	}
	return datacube.NewCubeStore(ds, opts...)
}

func tiffStore(src string) (*zarrstore.Store, error) {
	var r tiff.ReadAtReadSeeker
	if strings.HasPrefix(src, "gs://") {
		osr, err := gcsa.Reader(src)
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", src, err)
		}
		r = osr
	} else {
		f, err := os.Open(src)
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", src, err)
		}
		r = f
	}
	tsrc, err := tiffsrc.Open(r)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", src, err)
	}
	store, err := zarrstore.New(nil)
	if err != nil {
		return nil, err
	}
	if err := tsrc.AddTo(store, arrayName, [2]string{"y", "x"}); err != nil {
		return nil, err
	}
	return store, nil
}

// storeHandler maps the store's key protocol onto http: GETs resolve
// keys, missing keys are 404s, and everything else is rejected.
func storeHandler(store *zarrstore.Store) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		key := strings.Trim(r.URL.Path, "/")
		if key == "" {
			key = zarrstore.MetadataKey
		}
		data, err := store.Get(key)
		if errors.Is(err, zarrstore.ErrKeyNotFound) {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		if err != nil {
			log.Logger(r.Context()).Sugar().Errorf("resolve %s: %v", key, err)
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		if strings.HasSuffix(key, ".zmetadata") || strings.HasSuffix(key, ".zgroup") ||
			strings.HasSuffix(key, ".zattrs") || strings.HasSuffix(key, ".zarray") {
			w.Header().Set("Content-Type", "application/json")
		} else {
			w.Header().Set("Content-Type", "application/octet-stream")
		}
		if r.Method == http.MethodGet {
			w.Write(data)
		}
	})
}

var infoCmd = &cobra.Command{
	Use:   "info src.zarr",
	Short: "describe the arrays of a zarr directory",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		_, arrays, err := zarrstore.ReadDir(args[0])
		if err != nil {
			return fmt.Errorf("read %s: %w", args[0], err)
		}
		for _, a := range arrays {
			fmt.Printf("%s %s dims=%v shape=%v\n", a.Name, a.DType, a.Dims, a.Shape)
		}
		return nil
	},
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}
