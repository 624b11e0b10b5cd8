package capabilities

import (
	"net/http"

	"github.com/hbomb79/Verto/internal/api/util"
	"github.com/hbomb79/Verto/internal/capability"
	"github.com/labstack/echo/v4"
)

type (
	CodecDto struct {
		Codec     string            `json:"codec"`
		Extension string            `json:"extension"`
		Native    map[string]string `json:"native,omitempty"`
	}

	KindDto struct {
		Kind   capability.MediaKind `json:"kind"`
		Codecs []CodecDto           `json:"codecs"`
	}

	Controller struct {
		table capability.Table
	}
)

func New(table capability.Table) *Controller {
	return &Controller{table: table}
}

func (controller *Controller) SetRoutes(eg *echo.Group) {
	eg.GET("/:kind/", controller.get)
}

func (controller *Controller) get(ec echo.Context) error {
	dto, ok := NewKindDto(controller.table, capability.MediaKind(ec.Param("kind")))
	if !ok {
		return echo.ErrNotFound
	}

	return ec.JSON(http.StatusOK, dto)
}

// NewKindDto describes every codec known for the media kind provided. The
// boolean is false if the kind is unknown.
func NewKindDto(table capability.Table, kind capability.MediaKind) (KindDto, bool) {
	codecs := table.Codecs(kind)
	if len(codecs) == 0 {
		return KindDto{}, false
	}

	return KindDto{
		Kind: kind,
		Codecs: util.ApplyConversion(codecs, func(codec string) CodecDto {
			c, _ := table.Lookup(kind, codec)
			return CodecDto{Codec: codec, Extension: c.Extension, Native: c.Native}
		}),
	}, true
}
