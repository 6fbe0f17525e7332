package photos

type album struct {
	ID    string `json:"id,omitempty"`
	Title string `json:"title"`
}

type listAlbumsResponse struct {
	Albums        []album `json:"albums"`
	NextPageToken string  `json:"nextPageToken"`
}

type createAlbumRequest struct {
	Album album `json:"album"`
}

type simpleMediaItem struct {
	UploadToken string `json:"uploadToken"`
	FileName    string `json:"fileName,omitempty"`
}

type newMediaItem struct {
	Description     string          `json:"description"`
	SimpleMediaItem simpleMediaItem `json:"simpleMediaItem"`
}

type batchCreateRequest struct {
	AlbumID       string         `json:"albumId,omitempty"`
	NewMediaItems []newMediaItem `json:"newMediaItems"`
}

type itemStatus struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type mediaItemResult struct {
	UploadToken string     `json:"uploadToken"`
	Status      itemStatus `json:"status"`
}

type batchCreateResponse struct {
	NewMediaItemResults []mediaItemResult `json:"newMediaItemResults"`
}
