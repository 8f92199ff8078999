package app

import (
	"fmt"

	"github.com/plgd-dev/go-coap/v2/net/blockwise"
	"go.uber.org/zap"

	"github.com/plgd-dev/cinfo/internal/config"
	"github.com/plgd-dev/cinfo/internal/mote"
)

// NewClient builds the coap client handle described by cfg.
func NewClient(cfg *config.Config, log *zap.SugaredLogger) (*mote.CoAPClient, error) {
	szx, err := blockSZX(cfg.BlockSizeBytes)
	if err != nil {
		return nil, err
	}
	return mote.NewCoAPClient(
		mote.WithLocalPort(cfg.LocalPort),
		mote.WithTransmission(cfg.TransmissionNStart, cfg.AcknowledgeTimeout, uint32(cfg.MaxRetransmit)),
		mote.WithBlockwise(cfg.BlockwiseEnable, szx, cfg.BlockwiseTransferTimeout),
		mote.WithSecurity(mote.Security{
			PSKIdentity:        cfg.PSKIdentity,
			PSK:                cfg.PSK,
			KeyFile:            cfg.KeyFile,
			CertFile:           cfg.CertFile,
			CAFile:             cfg.CAFile,
			InsecureSkipVerify: cfg.InsecureSkipVerify,
		}),
		mote.WithLogger(log.Named("coap")),
	), nil
}

func blockSZX(size int64) (blockwise.SZX, error) {
	switch size {
	case 16:
		return blockwise.SZX16, nil
	case 32:
		return blockwise.SZX32, nil
	case 64:
		return blockwise.SZX64, nil
	case 128:
		return blockwise.SZX128, nil
	case 256:
		return blockwise.SZX256, nil
	case 512:
		return blockwise.SZX512, nil
	case 1024:
		return blockwise.SZX1024, nil
	}
	return 0, fmt.Errorf("invalid block_size %v (power of two between 16B and 1KiB)", size)
}
