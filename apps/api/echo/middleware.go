package echoapi

import (
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"
	"golang.org/x/time/rate"

	"github.com/trezcool/beerxchange/core/user"
)

func adminMiddleware(roles ...string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			claims, err := getContextClaims(ctx)
			if err != nil {
				return errors.Wrap(err, "getting context claims")
			}
			if claims.IsAdmin && contextHasAnyRole(ctx, roles) {
				return next(ctx)
			}
			return errHttpForbidden
		}
	}
}

// brewerMiddleware only lets authenticated brewers through; it must run after the JWT middleware.
func (a *authenticator) brewerMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			if err := a.setContextBrewer(ctx); err != nil {
				return err
			}
			return next(ctx)
		}
	}
}

// brewerResolver sets the requesting brewer on the context. Requests without a token act as the demo brewer
// when demo is enabled.
func (a *authenticator) brewerResolver(demo bool) echo.MiddlewareFunc {
	conf := a.jwtConfig
	conf.Skipper = func(ctx echo.Context) bool {
		return demo && ctx.Request().Header.Get(echo.HeaderAuthorization) == ""
	}
	jwt := middleware.JWTWithConfig(conf)

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return jwt(func(ctx echo.Context) error {
			if _, err := getContextClaims(ctx); err != nil { // skipped: no token
				usr, err := a.svc.DemoBrewer(ctx.Request().Context())
				if err != nil {
					return errors.Wrap(err, "getting demo brewer")
				}
				ctx.Set(contextUserKey, usr)
				return next(ctx)
			}
			if err := a.setContextBrewer(ctx); err != nil {
				return err
			}
			return next(ctx)
		})
	}
}

func (a *authenticator) setContextBrewer(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return err
	}
	if !claims.IsBrewer {
		return errHttpForbidden
	}
	usr, err := a.contextUser(ctx, claims)
	if err != nil {
		return err
	}
	if !usr.IsActive {
		return errAccountDeactivated
	}
	return nil
}

func contextBrewer(ctx echo.Context) (user.User, error) {
	if usr, ok := ctx.Get(contextUserKey).(user.User); ok {
		return usr, nil
	}
	return user.User{}, errUnauthorized
}

// limiterIdleTTL is how long a client's limiter survives without requests.
const limiterIdleTTL = 10 * time.Minute

// rateLimiter throttles requests per client IP.
type rateLimiter struct {
	visitors map[string]*visitor
	mu       sync.Mutex
	rate     rate.Limit
	burst    int
	now      func() time.Time
}

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func newRateLimiter(perSecond float64, burst int) *rateLimiter {
	if burst < 1 {
		burst = 1
	}
	return &rateLimiter{
		visitors: make(map[string]*visitor),
		rate:     rate.Limit(perSecond),
		burst:    burst,
		now:      time.Now,
	}
}

func (rl *rateLimiter) limiter(key string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	v, ok := rl.visitors[key]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(rl.rate, rl.burst)}
		rl.visitors[key] = v
	}
	v.lastSeen = rl.now()
	return v.limiter
}

// cleanup drops the limiters of clients idle for longer than limiterIdleTTL.
func (rl *rateLimiter) cleanup() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	cutoff := rl.now().Add(-limiterIdleTTL)
	for key, v := range rl.visitors {
		if v.lastSeen.Before(cutoff) {
			delete(rl.visitors, key)
		}
	}
}

// startCleanup runs cleanup every interval until stop is called.
func (rl *rateLimiter) startCleanup(interval time.Duration) (stop func()) {
	ticker := time.NewTicker(interval)
	done := make(chan struct{})
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				rl.cleanup()
			case <-done:
				return
			}
		}
	}()

	var once sync.Once
	return func() { once.Do(func() { close(done) }) }
}

func (rl *rateLimiter) middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			if rl.rate <= 0 { // disabled
				return next(ctx)
			}
			if !rl.limiter(ctx.RealIP()).Allow() {
				return errTooManyRequests
			}
			return next(ctx)
		}
	}
}
