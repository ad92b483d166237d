package navcheck

import (
	"encoding/json"
	"fmt"

	"github.com/pkg/errors"
)

// Both CDP drivers locate elements by evaluating the same expressions in the page, so an
// element handle is (selector, index) and staleness is detected by re-evaluating.

// quote a Go string as a JS string literal
func quote(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}

// QueryExpression evaluates to an array of elements matching sel, in document order
func QueryExpression(sel Selector) string {
	q := quote(sel.Query)
	switch sel.Kind {
	case ByCSS:
		return fmt.Sprintf("Array.from(document.querySelectorAll(%s))", q)
	case ByID:
		return fmt.Sprintf("[document.getElementById(%s)].filter(Boolean)", q)
	case ByName:
		return fmt.Sprintf("Array.from(document.getElementsByName(%s))", q)
	case ByClassName:
		return fmt.Sprintf("Array.from(document.getElementsByClassName(%s))", q)
	case ByTagName:
		return fmt.Sprintf("Array.from(document.getElementsByTagName(%s))", q)
	case ByLinkText:
		return fmt.Sprintf("Array.from(document.querySelectorAll('a')).filter(function(a){return (a.innerText||a.textContent||'').trim()===%s;})", q)
	case ByPartialLinkText:
		return fmt.Sprintf("Array.from(document.querySelectorAll('a')).filter(function(a){return (a.innerText||a.textContent||'').indexOf(%s)!==-1;})", q)
	case ByXPath:
		return xpathExpression(q)
	case ByText:
		return xpathExpression(quote(fmt.Sprintf("//*[normalize-space(text())=%s]", xpathLiteral(sel.Query))))
	}
	return "[]"
}

func xpathExpression(quotedQuery string) string {
	return fmt.Sprintf("(function(){var r=document.evaluate(%s,document,null,XPathResult.ORDERED_NODE_SNAPSHOT_TYPE,null);var a=[];for(var i=0;i<r.snapshotLength;i++){a.push(r.snapshotItem(i));}return a;})()", quotedQuery)
}

// xpathLiteral quotes s for use inside an xpath expression, handling both quote kinds
func xpathLiteral(s string) string {
	hasSingle := false
	hasDouble := false
	for _, r := range s {
		switch r {
		case '\'':
			hasSingle = true
		case '"':
			hasDouble = true
		}
	}
	switch {
	case !hasSingle:
		return "'" + s + "'"
	case !hasDouble:
		return `"` + s + `"`
	}
	parts := "concat("
	start := 0
	for i, r := range s {
		if r == '\'' {
			if i > start {
				parts += "'" + s[start:i] + "',"
			}
			parts += `"'",`
			start = i + 1
		}
	}
	parts += "'" + s[start:] + "')"
	return parts
}

// CountScript evaluates to the number of matches
func CountScript(sel Selector) string {
	return fmt.Sprintf("(function(){try{return %s.length;}catch(e){return -1;}})()", QueryExpression(sel))
}

// Inspection is what InspectScript returns for one element
type Inspection struct {
	Stale        bool    `json:"stale"`
	Visible      bool    `json:"visible"`
	Interactable bool    `json:"interactable"`
	X            float64 `json:"x"`
	Y            float64 `json:"y"`
}

// InspectScript evaluates visibility and interactability of the index'th match.
// scroll brings the element into view first so X/Y are clickable viewport coordinates.
func InspectScript(sel Selector, index int, scroll bool) string {
	scrollJS := ""
	if scroll {
		scrollJS = "el.scrollIntoView({block:'center',inline:'center'});"
	}
	return fmt.Sprintf(`(function(){
var els=%s;var el=els[%d];
if(!el||!el.isConnected){return {stale:true};}
%s
var st=window.getComputedStyle(el);var r=el.getBoundingClientRect();
var visible=r.width>0&&r.height>0&&st.visibility!=='hidden'&&st.display!=='none'&&st.opacity!=='0';
var interactable=visible&&!el.disabled&&st.pointerEvents!=='none'&&el.getAttribute('aria-disabled')!=='true';
return {stale:false,visible:visible,interactable:interactable,x:r.left+r.width/2,y:r.top+r.height/2};
})()`, QueryExpression(sel), index, scrollJS)
}

// ClickScript clicks the index'th match from script, used when dispatching mouse
// events is not possible.
func ClickScript(sel Selector, index int) string {
	return fmt.Sprintf("(function(){var el=%s[%d];if(!el){return false;}el.click();return true;})()", QueryExpression(sel), index)
}

// LocationScript evaluates to the href and origin of the current document
const LocationScript = "({href: window.location.href, origin: window.location.origin})"

// ReadyStateScript evaluates to document.readyState
const ReadyStateScript = "document.readyState"

// Location of a document
type Location struct {
	Href   string `json:"href"`
	Origin string `json:"origin"`
}

// DecodeValue converts a by-value evaluation result (maps/slices from a JSON decoder)
// into out
func DecodeValue(value interface{}, out interface{}) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return errors.Wrap(err, "encoding evaluation result")
	}
	return errors.Wrap(json.Unmarshal(raw, out), "decoding evaluation result")
}
