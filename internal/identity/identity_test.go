package identity

import (
	"context"
	"errors"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func TestContextSource(t *testing.T) {
	Convey("Given a context", t, func() {
		ctx := context.Background()
		var src Source = ContextSource{}

		Convey("Without a user nothing resolves", func() {
			_, ok := src.UserID(ctx)
			So(ok, ShouldBeFalse)
		})

		Convey("With a user the id resolves and the token is kept", func() {
			ctx = WithUser(ctx, User{ID: "u1", Token: "tok"})
			id, ok := src.UserID(ctx)
			So(ok, ShouldBeTrue)
			So(id, ShouldEqual, "u1")
			u, _ := FromContext(ctx)
			So(u.Token, ShouldEqual, "tok")
		})

		Convey("A blank user id counts as signed out", func() {
			_, ok := src.UserID(WithUser(ctx, User{}))
			So(ok, ShouldBeFalse)
		})
	})
}

func TestStatic(t *testing.T) {
	Convey("Static sources", t, func() {
		id, ok := Static("u1").UserID(context.Background())
		So(ok, ShouldBeTrue)
		So(id, ShouldEqual, "u1")
		_, ok = Static("").UserID(context.Background())
		So(ok, ShouldBeFalse)
	})
}

func TestInsecureVerifier(t *testing.T) {
	Convey("The insecure verifier echoes the token", t, func() {
		u, err := InsecureVerifier{}.Verify(context.Background(), " u1 ")
		So(err, ShouldBeNil)
		So(u.ID, ShouldEqual, "u1")

		_, err = InsecureVerifier{}.Verify(context.Background(), "")
		So(errors.Is(err, ErrUnauthenticated), ShouldBeTrue)
	})
}

func TestBearerToken(t *testing.T) {
	Convey("Bearer headers are parsed", t, func() {
		So(BearerToken("Bearer abc"), ShouldEqual, "abc")
		So(BearerToken("bearer  abc "), ShouldEqual, "abc")
		So(BearerToken("Basic abc"), ShouldBeEmpty)
		So(BearerToken(""), ShouldBeEmpty)
	})
}
