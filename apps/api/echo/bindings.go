package echoapi

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/beerxchange/core"
	uploadsvc "github.com/trezcool/beerxchange/services/upload"
)

// intQuery reads an integer query param; missing or malformed values give def.
func intQuery(ctx echo.Context, name string, def int) int {
	val := ctx.QueryParam(name)
	if val == "" {
		return def
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return def
	}
	return n
}

// listQuery reads a comma separated or repeated query param.
func listQuery(ctx echo.Context, name string) []string {
	var out []string
	for _, val := range ctx.QueryParams()[name] {
		for _, item := range strings.Split(val, ",") {
			if item = core.CleanString(item); item != "" {
				out = append(out, item)
			}
		}
	}
	return out
}

// formFloat reads a float form value; empty or malformed values are null.
func formFloat(ctx echo.Context, name string) null.Float64 {
	val := core.CleanString(ctx.FormValue(name))
	if val == "" {
		return null.Float64{}
	}
	f, err := strconv.ParseFloat(val, 64)
	if err != nil {
		return null.Float64{}
	}
	return null.Float64From(f)
}

func isMultipart(ctx echo.Context) bool {
	return strings.HasPrefix(ctx.Request().Header.Get(echo.HeaderContentType), echo.MIMEMultipartForm)
}

// formImage stores the optional "image" file of a multipart request and returns its URL, "" when there is none.
func formImage(ctx echo.Context, images *uploadsvc.ImageStore) (string, error) {
	if !isMultipart(ctx) {
		return "", nil
	}
	fh, err := ctx.FormFile("image")
	if err == http.ErrMissingFile {
		return "", nil
	}
	if err != nil {
		return "", echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return images.Save(fh)
}
