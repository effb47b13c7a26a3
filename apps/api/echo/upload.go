package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"

	uploadsvc "github.com/trezcool/beerxchange/services/upload"
)

type uploadApi struct {
	images *uploadsvc.ImageStore
}

func registerUploadAPI(g *echo.Group, images *uploadsvc.ImageStore) {
	api := uploadApi{images: images}
	g.POST("/uploads/image", api.uploadImage, middleware.BodyLimit("11M"))
}

func (api *uploadApi) uploadImage(ctx echo.Context) error {
	if !isMultipart(ctx) {
		return errMissingImage
	}
	fh, err := ctx.FormFile("image")
	if err == http.ErrMissingFile {
		return errMissingImage
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	url, err := api.images.Save(fh)
	if err != nil {
		return errors.Wrap(err, "saving image")
	}
	return ctx.JSON(http.StatusCreated, UploadResponse{URL: url})
}

type UploadResponse struct {
	URL string `json:"url"`
}
