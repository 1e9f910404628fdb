package collect

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/mmcdole/gofeed"
	ext "github.com/mmcdole/gofeed/extensions"
)

// resolveImage picks an item image. First match wins:
//  1. sources with a medium override only accept media:content of that medium
//  2. any media:content url, or an image enclosure
//  3. media:thumbnail, then the parser's item image
//  4. first <img src> in the description, then the extended body
//  5. the source's fallback image
func resolveImage(item *gofeed.Item, src FeedSource) string {
	if src.MediaMedium != "" {
		if u := mediaContentURL(item, src.MediaMedium); u != "" {
			return u
		}
	} else {
		if u := mediaContentURL(item, ""); u != "" {
			return u
		}
		if u := enclosureImageURL(item); u != "" {
			return u
		}
	}

	if u := firstMediaURL(mediaElements(item, "thumbnail")); u != "" {
		return u
	}
	if item.Image != nil && strings.TrimSpace(item.Image.URL) != "" {
		return strings.TrimSpace(item.Image.URL)
	}
	if u := firstInlineImage(item.Description); u != "" {
		return u
	}
	if u := firstInlineImage(item.Content); u != "" {
		return u
	}
	return src.FallbackImage
}

// mediaElements returns media:<name> elements, including those nested in media:group.
func mediaElements(item *gofeed.Item, name string) []ext.Extension {
	media, ok := item.Extensions["media"]
	if !ok {
		return nil
	}
	elems := append([]ext.Extension(nil), media[name]...)
	for _, group := range media["group"] {
		elems = append(elems, group.Children[name]...)
	}
	return elems
}

func mediaContentURL(item *gofeed.Item, medium string) string {
	for _, c := range mediaElements(item, "content") {
		if medium != "" && !strings.EqualFold(c.Attrs["medium"], medium) {
			continue
		}
		if u := strings.TrimSpace(c.Attrs["url"]); u != "" {
			return u
		}
	}
	return ""
}

func firstMediaURL(elems []ext.Extension) string {
	for _, e := range elems {
		if u := strings.TrimSpace(e.Attrs["url"]); u != "" {
			return u
		}
	}
	return ""
}

func enclosureImageURL(item *gofeed.Item) string {
	for _, enc := range item.Enclosures {
		if enc == nil || enc.URL == "" {
			continue
		}
		if strings.HasPrefix(strings.ToLower(enc.Type), "image/") {
			return enc.URL
		}
	}
	return ""
}

func firstInlineImage(html string) string {
	if !strings.Contains(strings.ToLower(html), "<img") {
		return ""
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return ""
	}
	var src string
	doc.Find("img[src]").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		src = strings.TrimSpace(s.AttrOr("src", ""))
		return src == ""
	})
	return src
}
