/*
 * MIT License
 *
 * Copyright (c) 2020 Nicolas JUHEL
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in all
 * copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 *
 *
 */

package errors

// Code namespaces for the transport-domain packages, continuing the
// ascending MinPkgXxx convention above MinAvailable so they never collide
// with the packages above.
const (
	MinPkgReactor       = 4000
	MinPkgSocket        = 4100
	MinPkgSocketTLS     = 4150
	MinPkgSocketDTLS    = 4200
	MinPkgSocketQUIC    = 4250
	MinPkgSession       = 4300
	MinPkgAcceptor      = 4400
	MinPkgPool          = 4500
	MinPkgBreaker       = 4600
	MinPkgResilient     = 4700
	MinPkgObservability = 4800
	MinPkgMetrics       = 4820
	MinPkgTracing       = 4840
	MinPkgQuicWire      = 4900
	MinPkgHttp2         = 4950

	MinAvailableTransport = 5000
)
