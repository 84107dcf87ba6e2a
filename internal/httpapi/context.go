package httpapi

import (
	"github.com/gin-gonic/gin"

	"github.com/tesslate/studio-orchestrator/internal/orcherr"
)

// userIDHeader is the trusted upstream identity header. Authenticating the
// bearer of that identity is out of scope here (spec.md §1); whatever
// gateway terminates end-user auth in front of the control plane is
// responsible for setting it.
const userIDHeader = "X-User-ID"

func requestUserID(c *gin.Context) string {
	if v := c.GetHeader(userIDHeader); v != "" {
		return v
	}
	return "anonymous"
}

// respondErr maps any error through orcherr's taxonomy to an HTTP status
// and JSON body, wrapping foreign errors (e.g. from database/sql) first.
func respondErr(c *gin.Context, err error) {
	oe := orcherr.Wrap(err)
	c.JSON(oe.StatusCode(), oe.ToResponse())
}
