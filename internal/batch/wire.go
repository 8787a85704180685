package batch

import (
	"github.com/sirupsen/logrus"

	"photo-compressor-go/internal/codec"
	"photo-compressor-go/internal/compressor"
	"photo-compressor-go/internal/config"
	"photo-compressor-go/internal/extractor"
	"photo-compressor-go/internal/metadata"
	"photo-compressor-go/internal/resize"
	"photo-compressor-go/internal/scanner"
)

// NewDefaultRunner wires the production components for cfg. The returned close
// function releases the metadata tool and must be called once the run is over.
func NewDefaultRunner(cfg *config.Config, logger *logrus.Logger, hooks Hooks) (*Runner, func() error) {
	orientation := extractor.NewEXIFExtractor(logger)
	deriver := resize.NewDeriver(resize.HeaderProber{}, orientation)

	var copier metadata.Copier = metadata.NopCopier{}
	closeFn := func() error { return nil }
	if cfg.Exif {
		et := metadata.NewExiftoolCopier(logger)
		copier = et
		closeFn = et.Close
	}

	comp := compressor.NewDefaultCompressor(codec.NewImagingCodec(), deriver, copier, logger)
	runner := NewRunnerWithHooks(cfg, logger, scanner.NewScanner(logger), comp, orientation, hooks)
	return runner, closeFn
}
