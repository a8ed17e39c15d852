package tiktok

// Wire types for the web player API. Only the fields the acquisition path
// reads are declared.

type playerResponse struct {
	StatusCode int          `json:"status_code"`
	Items      []playerItem `json:"items"`
}

type playerItem struct {
	VideoInfo     *urlContainer  `json:"video_info"`
	ImagePostInfo *imagePostInfo `json:"image_post_info"`
	MusicInfo     *urlContainer  `json:"music_info"`
}

type imagePostInfo struct {
	Images []imageEntry `json:"images"`
}

type imageEntry struct {
	DisplayImage urlContainer `json:"display_image"`
}

type urlContainer struct {
	URLList []string `json:"url_list"`
}

// urls is nil-safe so callers can chase optional branches directly.
func (c *urlContainer) urls() []string {
	if c == nil {
		return nil
	}
	return c.URLList
}

// imageURLs returns the first usable URL of each image in the post.
func (i *playerItem) imageURLs() []string {
	if i.ImagePostInfo == nil {
		return nil
	}
	var urls []string
	for _, img := range i.ImagePostInfo.Images {
		if u := firstURL(img.DisplayImage.URLList); u != "" {
			urls = append(urls, u)
		}
	}
	return urls
}
