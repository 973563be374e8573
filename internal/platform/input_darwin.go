//go:build darwin

package platform

/*
#cgo LDFLAGS: -framework ApplicationServices -framework CoreFoundation

#include <ApplicationServices/ApplicationServices.h>
#include <unistd.h>

// ============================================================================
// Synthetic input via Quartz event services
// ============================================================================

static int scrivPostUnicode(UniChar *chars, int n) {
    CGEventRef down = CGEventCreateKeyboardEvent(NULL, 0, true);
    CGEventRef up = CGEventCreateKeyboardEvent(NULL, 0, false);
    if (down == NULL || up == NULL) {
        if (down) CFRelease(down);
        if (up) CFRelease(up);
        return -1;
    }
    CGEventKeyboardSetUnicodeString(down, n, chars);
    CGEventKeyboardSetUnicodeString(up, n, chars);
    CGEventPost(kCGHIDEventTap, down);
    CGEventPost(kCGHIDEventTap, up);
    CFRelease(down);
    CFRelease(up);
    return 0;
}

static int scrivPostKey(CGKeyCode code, CGEventFlags flags) {
    CGEventRef down = CGEventCreateKeyboardEvent(NULL, code, true);
    CGEventRef up = CGEventCreateKeyboardEvent(NULL, code, false);
    if (down == NULL || up == NULL) {
        if (down) CFRelease(down);
        if (up) CFRelease(up);
        return -1;
    }
    CGEventSetFlags(down, flags);
    CGEventSetFlags(up, flags);
    CGEventPost(kCGHIDEventTap, down);
    CGEventPost(kCGHIDEventTap, up);
    CFRelease(down);
    CFRelease(up);
    return 0;
}

static int scrivClick(double x, double y) {
    CGPoint p = CGPointMake(x, y);
    CGEventRef move = CGEventCreateMouseEvent(NULL, kCGEventMouseMoved, p, kCGMouseButtonLeft);
    CGEventRef down = CGEventCreateMouseEvent(NULL, kCGEventLeftMouseDown, p, kCGMouseButtonLeft);
    CGEventRef up = CGEventCreateMouseEvent(NULL, kCGEventLeftMouseUp, p, kCGMouseButtonLeft);
    if (move == NULL || down == NULL || up == NULL) {
        if (move) CFRelease(move);
        if (down) CFRelease(down);
        if (up) CFRelease(up);
        return -1;
    }
    CGEventPost(kCGHIDEventTap, move);
    usleep(10000);
    CGEventPost(kCGHIDEventTap, down);
    CGEventPost(kCGHIDEventTap, up);
    CFRelease(move);
    CFRelease(down);
    CFRelease(up);
    return 0;
}

static void scrivMainDisplay(double *x, double *y, double *w, double *h) {
    CGRect r = CGDisplayBounds(CGMainDisplayID());
    *x = r.origin.x;
    *y = r.origin.y;
    *w = r.size.width;
    *h = r.size.height;
}

// Caret bounds through AXBoundsForRange on the focused element's selected
// range. Returns 0 on success, -1 without accessibility permission, -2 when
// there is no focused text element.
static int scrivCaret(pid_t pid, double *x, double *y, double *h) {
    if (!AXIsProcessTrusted()) {
        return -1;
    }
    AXUIElementRef app = AXUIElementCreateApplication(pid);
    if (app == NULL) {
        return -2;
    }
    int rc = -2;
    CFTypeRef focused = NULL;
    CFTypeRef range = NULL;
    CFTypeRef bounds = NULL;

    if (AXUIElementCopyAttributeValue(app, kAXFocusedUIElementAttribute, &focused) != kAXErrorSuccess || focused == NULL) {
        goto done;
    }
    if (AXUIElementCopyAttributeValue((AXUIElementRef)focused, kAXSelectedTextRangeAttribute, &range) != kAXErrorSuccess || range == NULL) {
        goto done;
    }
    if (AXUIElementCopyParameterizedAttributeValue((AXUIElementRef)focused, kAXBoundsForRangeParameterizedAttribute, range, &bounds) != kAXErrorSuccess || bounds == NULL) {
        goto done;
    }
    CGRect r;
    if (AXValueGetValue((AXValueRef)bounds, kAXValueCGRectType, &r)) {
        *x = r.origin.x;
        *y = r.origin.y;
        *h = r.size.height;
        rc = 0;
    }

done:
    if (bounds) CFRelease(bounds);
    if (range) CFRelease(range);
    if (focused) CFRelease(focused);
    CFRelease(app);
    return rc;
}

static int scrivTrusted(void) {
    return AXIsProcessTrusted() ? 1 : 0;
}
*/
import "C"

import (
	"context"
	"errors"
	"fmt"
	"unicode/utf16"

	"scrivener/internal/axtree"
)

// ErrNotTrusted means the process lacks the macOS accessibility permission.
var ErrNotTrusted = errors.New("platform: accessibility permission not granted (System Settings > Privacy & Security > Accessibility)")

// Virtual key codes from HIToolbox/Events.h.
var quartzKeys = map[Key]C.CGKeyCode{
	KeyEnter:     36,
	KeyTab:       48,
	KeyEscape:    53,
	KeyBackspace: 51,
}

const quartzKeyV = 9

// quartz implements Input and Displays with Quartz event services.
type quartz struct{}

func (quartz) KeyRune(ctx context.Context, r rune) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	units := utf16.Encode([]rune{r})
	chars := make([]C.UniChar, len(units))
	for i, u := range units {
		chars[i] = C.UniChar(u)
	}
	if C.scrivPostUnicode(&chars[0], C.int(len(chars))) != 0 {
		return errors.New("post unicode key event failed")
	}
	return nil
}

func (quartz) KeyPress(ctx context.Context, k Key) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	code, ok := quartzKeys[k]
	if !ok {
		return fmt.Errorf("%w: key %s", ErrUnsupported, k)
	}
	if C.scrivPostKey(code, 0) != 0 {
		return fmt.Errorf("post key %s failed", k)
	}
	return nil
}

func (quartz) Click(ctx context.Context, p axtree.Point) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if C.scrivClick(C.double(p.X), C.double(p.Y)) != 0 {
		return errors.New("post mouse event failed")
	}
	return nil
}

func (quartz) Paste(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if C.scrivPostKey(quartzKeyV, C.CGEventFlags(C.kCGEventFlagMaskCommand)) != 0 {
		return errors.New("post paste chord failed")
	}
	return nil
}

func (quartz) Primary(context.Context) (axtree.Rect, error) {
	var x, y, w, h C.double
	C.scrivMainDisplay(&x, &y, &w, &h)
	r := axtree.Rect{X: float64(x), Y: float64(y), Width: float64(w), Height: float64(h)}
	if r.Empty() {
		return r, errors.New("main display reports empty bounds")
	}
	return r, nil
}

func caretPoint(pid int) (axtree.Point, error) {
	var x, y, h C.double
	switch C.scrivCaret(C.pid_t(pid), &x, &y, &h) {
	case 0:
		return axtree.Point{X: float64(x) + 1, Y: float64(y) + float64(h)/2}, nil
	case -1:
		return axtree.Point{}, ErrNotTrusted
	default:
		return axtree.Point{}, fmt.Errorf("%w: no focused text element", ErrNoElement)
	}
}

func accessibilityTrusted(context.Context) error {
	if C.scrivTrusted() == 0 {
		return ErrNotTrusted
	}
	return nil
}
