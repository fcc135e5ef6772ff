package api

// Response is the handler's view of the outbound response. A zero Code means
// no status has been set yet.
type Response struct {
	Code    int
	Body    any
	Headers map[string]string
	Cookies map[string]string
}

func newResponse() Response {
	return Response{Headers: map[string]string{}, Cookies: map[string]string{}}
}

// SetCode sets the HTTP status code.
func (r *Response) SetCode(code int) *Response {
	r.Code = code
	return r
}

// SetBody sets the response body.
func (r *Response) SetBody(body any) *Response {
	r.Body = body
	return r
}

// SetHeader sets one response header.
func (r *Response) SetHeader(name, value string) *Response {
	if r.Headers == nil {
		r.Headers = map[string]string{}
	}
	r.Headers[name] = value
	return r
}

// SetHeaders merges headers into the response headers.
func (r *Response) SetHeaders(headers map[string]string) *Response {
	for k, v := range headers {
		r.SetHeader(k, v)
	}
	return r
}

// SetCookie sets one response cookie.
func (r *Response) SetCookie(name, value string) *Response {
	if r.Cookies == nil {
		r.Cookies = map[string]string{}
	}
	r.Cookies[name] = value
	return r
}

// SetCookies merges cookies into the response cookies.
func (r *Response) SetCookies(cookies map[string]string) *Response {
	for k, v := range cookies {
		r.SetCookie(k, v)
	}
	return r
}
